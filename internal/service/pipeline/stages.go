package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"retail-medallion/internal/aggregate"
	"retail-medallion/internal/config"
	"retail-medallion/internal/domain"
	"retail-medallion/internal/engine"
	"retail-medallion/internal/ingest"
	"retail-medallion/internal/normalize"
	"retail-medallion/internal/storage"
)

// SilverObject is the Silver snapshot's object key.
const SilverObject = "sales.parquet"

// StoreOpener resolves a layer location to an ObjectStore.
type StoreOpener func(ctx context.Context, location string) (domain.ObjectStore, error)

// Medallion builds the bronze, silver and gold stage functions from a
// pipeline definition.
type Medallion struct {
	cfg    *config.Pipeline
	views  []aggregate.View
	open   StoreOpener
	logger *slog.Logger
}

// NewMedallion returns stage functions for cfg. Layer locations are opened
// with storage.Open using creds.
func NewMedallion(cfg *config.Pipeline, creds *domain.StorageCredentials, logger *slog.Logger) *Medallion {
	return NewMedallionWithOpener(cfg, func(ctx context.Context, location string) (domain.ObjectStore, error) {
		return storage.Open(ctx, location, creds)
	}, logger)
}

// NewMedallionWithOpener is NewMedallion with a custom store opener.
func NewMedallionWithOpener(cfg *config.Pipeline, open StoreOpener, logger *slog.Logger) *Medallion {
	views := make([]aggregate.View, 0, len(cfg.Aggregate.Views))
	for _, v := range cfg.Aggregate.Views {
		views = append(views, aggregate.View{Name: v.Name, Dimensions: v.Dimensions})
	}
	return &Medallion{cfg: cfg, views: views, open: open, logger: logger}
}

// GroupBy replaces the configured Gold views with a single view over dims.
func (m *Medallion) GroupBy(dims []string) {
	m.views = []aggregate.View{{Name: "sales_by_" + strings.Join(dims, "_"), Dimensions: dims}}
}

// Stages returns bronze → silver → gold.
func (m *Medallion) Stages() []Stage {
	return []Stage{
		{Name: domain.StageBronze, Run: m.Bronze},
		{Name: domain.StageSilver, DependsOn: []string{domain.StageBronze}, Run: m.Silver},
		{Name: domain.StageGold, DependsOn: []string{domain.StageSilver}, Run: m.Gold},
	}
}

func (m *Medallion) ingestOptions() ingest.Options {
	return ingest.Options{Delimiter: m.cfg.DelimiterRune(), ExpectedColumns: m.cfg.Source.ExpectedColumns}
}

// bronzeObject is the key of the landed source file in the Bronze layer.
func (m *Medallion) bronzeObject() (string, error) {
	_, key, err := storage.SplitObject(m.cfg.Source.Path)
	if err != nil {
		return "", err
	}
	return path.Base(filepath.ToSlash(key)), nil
}

// Bronze validates the source file and lands a verbatim copy in the Bronze layer.
func (m *Medallion) Bronze(ctx context.Context) (domain.StageReport, error) {
	srcLocation, srcKey, err := storage.SplitObject(m.cfg.Source.Path)
	if err != nil {
		return domain.StageReport{}, err
	}
	src, err := m.open(ctx, srcLocation)
	if err != nil {
		return domain.StageReport{}, err
	}
	defer release(src)
	bronze, err := m.open(ctx, m.cfg.Layers.Bronze)
	if err != nil {
		return domain.StageReport{}, err
	}
	defer release(bronze)
	key, err := m.bronzeObject()
	if err != nil {
		return domain.StageReport{}, err
	}

	res, err := ingest.Land(ctx, src, srcKey, bronze, key, m.ingestOptions())
	if err != nil {
		return domain.StageReport{}, err
	}
	m.logger.Info("bronze landed", "output", res.Output, "rows", res.Rows, "columns", len(res.Header))
	return domain.StageReport{
		InputRows:    res.Rows,
		AdmittedRows: res.Rows,
		Output:       res.Output,
	}, nil
}

// Silver normalizes the Bronze snapshot and replaces the Silver snapshot.
// Schema errors and every other fatal error happen before the upload.
func (m *Medallion) Silver(ctx context.Context) (domain.StageReport, error) {
	n, err := normalize.New(normalize.Config{
		DateFormats: m.cfg.Normalize.DateFormats,
		Columns:     m.cfg.Normalize.Columns,
		Workers:     m.cfg.Normalize.Workers,
	})
	if err != nil {
		return domain.StageReport{}, err
	}
	bronze, err := m.open(ctx, m.cfg.Layers.Bronze)
	if err != nil {
		return domain.StageReport{}, err
	}
	defer release(bronze)
	silver, err := m.open(ctx, m.cfg.Layers.Silver)
	if err != nil {
		return domain.StageReport{}, err
	}
	defer release(silver)
	key, err := m.bronzeObject()
	if err != nil {
		return domain.StageReport{}, err
	}

	reader, err := ingest.Open(ctx, bronze, key, m.ingestOptions())
	if err != nil {
		return domain.StageReport{}, err
	}
	res, err := n.Normalize(ctx, reader)
	_ = reader.Close()
	if err != nil {
		return domain.StageReport{}, err
	}

	tmp, cleanup, err := tempDir()
	if err != nil {
		return domain.StageReport{}, err
	}
	defer cleanup()

	local := filepath.Join(tmp, SilverObject)
	if err := withEngine(ctx, func(e *engine.Engine) error {
		return e.WriteCleaned(ctx, local, res.Records)
	}); err != nil {
		return domain.StageReport{}, err
	}
	if err := upload(ctx, silver, SilverObject, local); err != nil {
		return domain.StageReport{}, err
	}

	report := domain.StageReport{
		InputRows:    res.Total,
		AdmittedRows: res.Admitted,
		RejectedRows: res.Rejected,
		Output:       silver.URI(SilverObject),
		Rejections:   res.Rejections,
	}
	m.logger.Info("silver written", "output", report.Output,
		"total", res.Total, "admitted", res.Admitted, "rejected", res.Rejected)
	return report, nil
}

// Gold aggregates the Silver snapshot into every configured view. All views
// are encoded before the first upload, and the snapshot only becomes current
// when the Gold manifest is replaced.
func (m *Medallion) Gold(ctx context.Context) (domain.StageReport, error) {
	agg, err := aggregate.New(aggregate.Config{
		Views:           m.views,
		AverageDiscount: m.cfg.Aggregate.AverageDiscount == nil || *m.cfg.Aggregate.AverageDiscount,
	})
	if err != nil {
		return domain.StageReport{}, err
	}
	silver, err := m.open(ctx, m.cfg.Layers.Silver)
	if err != nil {
		return domain.StageReport{}, err
	}
	defer release(silver)
	gold, err := m.open(ctx, m.cfg.Layers.Gold)
	if err != nil {
		return domain.StageReport{}, err
	}
	defer release(gold)

	ok, err := silver.Exists(ctx, SilverObject)
	if err != nil {
		return domain.StageReport{}, err
	}
	if !ok {
		return domain.StageReport{}, domain.ErrIngestion(silver.URI(SilverObject), nil, "silver snapshot not found; run the silver stage first")
	}

	tmp, cleanup, err := tempDir()
	if err != nil {
		return domain.StageReport{}, err
	}
	defer cleanup()

	silverLocal := filepath.Join(tmp, SilverObject)
	if err := download(ctx, silver, SilverObject, silverLocal); err != nil {
		return domain.StageReport{}, err
	}

	var (
		records []domain.CleanedRecord
		files   []goldFile
		rows    int64
	)
	err = withEngine(ctx, func(e *engine.Engine) error {
		var err error
		if records, err = e.ReadCleaned(ctx, silverLocal); err != nil {
			return err
		}
		sets, err := agg.All(records)
		if err != nil {
			return err
		}
		for _, set := range sets {
			local := filepath.Join(tmp, "gold-"+set.View.Name+".parquet")
			layout := engine.MetricsLayout{Dimensions: set.View.Dimensions, AverageDiscount: agg.AverageDiscount()}
			if err := e.WriteMetrics(ctx, local, layout, set.Metrics); err != nil {
				return fmt.Errorf("view %s: %w", set.View.Name, err)
			}
			files = append(files, goldFile{view: set.View, local: local})
			rows += int64(len(set.Metrics))
		}
		return nil
	})
	if err != nil {
		return domain.StageReport{}, err
	}

	previous := ""
	if prev, err := LoadGoldManifest(ctx, gold); err == nil {
		previous = prev.Snapshot
	} else if !errors.As(err, new(*domain.NotFoundError)) {
		m.logger.Warn("previous gold manifest unreadable", "error", err)
	}

	manifest, err := commitGold(ctx, gold, files)
	if err != nil {
		return domain.StageReport{}, err
	}
	outputs := make([]string, 0, len(manifest.Views))
	for _, v := range manifest.Views {
		outputs = append(outputs, gold.URI(v.Object))
	}

	m.logger.Info("gold committed", "snapshot", manifest.Snapshot, "previous", previous,
		"views", len(outputs), "input", len(records), "rows", rows)
	return domain.StageReport{
		InputRows:    int64(len(records)),
		AdmittedRows: rows,
		Output:       strings.Join(outputs, ","),
	}, nil
}

// release closes stores that hold a client, such as GCS.
func release(stores ...domain.ObjectStore) {
	for _, s := range stores {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func withEngine(ctx context.Context, fn func(e *engine.Engine) error) error {
	e, err := engine.Open(ctx)
	if err != nil {
		return err
	}
	defer e.Close() //nolint:errcheck
	return fn(e)
}

func tempDir() (string, func(), error) {
	dir, err := os.MkdirTemp("", "medallion-*")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// upload copies a local scratch file to key in store. The context is checked
// first so a cancelled stage never replaces the previous snapshot.
func upload(ctx context.Context, store domain.ObjectStore, key, local string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(local) //nolint:gosec // scratch file we created
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}
	defer f.Close() //nolint:errcheck
	if err := store.Put(ctx, key, f); err != nil {
		return fmt.Errorf("upload %s: %w", store.URI(key), err)
	}
	return nil
}

func download(ctx context.Context, store domain.ObjectStore, key, local string) error {
	body, err := store.Get(ctx, key)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return domain.ErrIngestion(store.URI(key), nil, "silver snapshot not found; run the silver stage first")
		}
		return err
	}
	defer body.Close() //nolint:errcheck

	f, err := os.Create(local) //nolint:gosec // scratch file
	if err != nil {
		return fmt.Errorf("create %s: %w", local, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return fmt.Errorf("download %s: %w", store.URI(key), err)
	}
	return f.Close()
}
