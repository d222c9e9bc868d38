package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"retail-medallion/internal/domain"
	"retail-medallion/internal/service/pipeline"
)

// rejectionRows bounds the rejection sample printed after a silver stage.
const rejectionRows = 10

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintTable writes rows as aligned columns under an upper-case header.
func PrintTable(w io.Writer, columns []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	upper := make([]string, len(columns))
	for i, c := range columns {
		upper[i] = strings.ToUpper(c)
	}
	if _, err := fmt.Fprintln(tw, strings.Join(upper, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// errorKind names the domain error class of err for JSON output.
func errorKind(err error) string {
	var (
		ingestion *domain.IngestionError
		schema    *domain.SchemaError
		access    *domain.StorageAccessError
		notFound  *domain.NotFoundError
		invalid   *domain.ValidationError
	)
	switch {
	case errors.As(err, &ingestion):
		return "ingestion"
	case errors.As(err, &schema):
		return "schema"
	case errors.As(err, &access):
		return "storage_access"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &invalid):
		return "validation"
	default:
		return "internal"
	}
}

type stageJSON struct {
	Stage      string             `json:"stage"`
	Status     string             `json:"status"`
	Input      int64              `json:"input_rows"`
	Admitted   int64              `json:"admitted_rows"`
	Rejected   int64              `json:"rejected_rows"`
	Output     string             `json:"output,omitempty"`
	Error      *string            `json:"error,omitempty"`
	Rejections []domain.Rejection `json:"rejections,omitempty"`
}

type runJSON struct {
	ID         string      `json:"id"`
	Trigger    string      `json:"trigger"`
	Status     string      `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Error      *string     `json:"error,omitempty"`
	Stages     []stageJSON `json:"stages"`
}

func toRunJSON(run *domain.PipelineRun, reports map[string]domain.StageReport) runJSON {
	out := runJSON{
		ID:         run.ID,
		Trigger:    run.TriggerType,
		Status:     run.Status,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Error:      run.ErrorMessage,
		Stages:     make([]stageJSON, 0, len(run.Stages)),
	}
	for _, s := range run.Stages {
		out.Stages = append(out.Stages, stageJSON{
			Stage:      s.Stage,
			Status:     s.Status,
			Input:      s.InputRows,
			Admitted:   s.AdmittedRows,
			Rejected:   s.RejectedRows,
			Output:     s.Output,
			Error:      s.ErrorMessage,
			Rejections: reports[s.Stage].Rejections,
		})
	}
	return out
}

func stageRows(run *domain.PipelineRun) [][]string {
	rows := make([][]string, 0, len(run.Stages))
	for _, s := range run.Stages {
		detail := s.Output
		if s.ErrorMessage != nil {
			detail = *s.ErrorMessage
		}
		rows = append(rows, []string{
			s.Stage,
			s.Status,
			strconv.FormatInt(s.InputRows, 10),
			strconv.FormatInt(s.AdmittedRows, 10),
			strconv.FormatInt(s.RejectedRows, 10),
			detail,
		})
	}
	return rows
}

func printResult(cmd *cobra.Command, res *pipeline.Result) error {
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(os.Stdout, toRunJSON(res.Run, res.Reports))
	}

	fmt.Fprintf(os.Stdout, "Run %s: %s\n\n", res.Run.ID, res.Run.Status)
	if err := PrintTable(os.Stdout, []string{"stage", "status", "input", "admitted", "rejected", "output"}, stageRows(res.Run)); err != nil {
		return err
	}

	rejections := res.Reports[domain.StageSilver].Rejections
	if len(rejections) == 0 {
		return nil
	}
	shown := rejections[:min(len(rejections), rejectionRows)]
	fmt.Fprintf(os.Stdout, "\nRejected rows (%d of %d):\n", len(shown), len(rejections))
	rows := make([][]string, 0, len(shown))
	for _, r := range shown {
		rows = append(rows, []string{strconv.Itoa(r.Line), r.Field, r.Value, r.Reason})
	}
	return PrintTable(os.Stdout, []string{"line", "field", "value", "reason"}, rows)
}

func printRuns(cmd *cobra.Command, runs []domain.PipelineRun) error {
	if getOutputFormat(cmd) == "json" {
		out := make([]runJSON, 0, len(runs))
		for i := range runs {
			out = append(out, toRunJSON(&runs[i], nil))
		}
		return PrintJSON(os.Stdout, out)
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		stages := make([]string, 0, len(r.Stages))
		for _, s := range r.Stages {
			stages = append(stages, s.Stage+"="+s.Status)
		}
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			r.ID,
			r.TriggerType,
			r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			strings.Join(stages, " "),
		})
	}
	return PrintTable(os.Stdout, []string{"run_id", "trigger", "status", "started", "duration", "stages"}, rows)
}
