package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"retail-medallion/internal/domain"
)

// LandResult describes a Bronze landing.
type LandResult struct {
	Header    []string
	Rows      int64
	RowErrors int64
	Output    string
}

// Land validates the source file and copies it byte for byte into the Bronze
// location under dstKey, replacing any previous snapshot. The source is read
// once: the bytes that pass validation are spooled to a scratch file and that
// file is what lands. Nothing is written when validation fails.
func Land(
	ctx context.Context,
	src domain.ObjectStore, srcKey string,
	dst domain.ObjectStore, dstKey string,
	opts Options,
) (*LandResult, error) {
	uri := src.URI(srcKey)
	body, err := getSource(ctx, src, srcKey)
	if err != nil {
		return nil, err
	}

	spool, err := os.CreateTemp("", "medallion-bronze-*")
	if err != nil {
		_ = body.Close()
		return nil, fmt.Errorf("create bronze spool: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	tee := io.TeeReader(body, spool)
	r, err := newReader(uri, tee, body, opts)
	if err != nil {
		return nil, err
	}

	res := &LandResult{Header: r.Header(), Output: dst.URI(dstKey)}
	for _, err := range r.Records() {
		if err != nil {
			var perr *domain.ParseError
			if !errors.As(err, &perr) {
				_ = r.Close()
				return nil, err
			}
			res.RowErrors++
		}
		res.Rows++
	}
	// The CSV reader stops at EOF; drain in case a trailing read was short.
	if _, err := io.Copy(io.Discard, tee); err != nil {
		_ = r.Close()
		return nil, domain.ErrIngestion(uri, err, "source file unreadable")
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", uri, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind bronze spool: %w", err)
	}
	if err := dst.Put(ctx, dstKey, spool); err != nil {
		return nil, fmt.Errorf("land %s: %w", res.Output, err)
	}
	return res, nil
}
