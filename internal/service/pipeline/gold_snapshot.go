package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"retail-medallion/internal/aggregate"
	"retail-medallion/internal/domain"
)

// GoldManifestObject is the key of the object that names the current Gold
// snapshot. Replacing it is the single commit step of the gold stage; views
// not listed in it are not part of Gold.
const GoldManifestObject = "_manifest.yaml"

// goldSnapshotPrefix holds one directory of view files per snapshot.
const goldSnapshotPrefix = "snapshots"

// GoldView is one dataset of a Gold snapshot.
type GoldView struct {
	Name       string   `yaml:"name"`
	Dimensions []string `yaml:"dimensions"`
	Object     string   `yaml:"object"`
}

// GoldManifest lists the views of the current Gold snapshot.
type GoldManifest struct {
	Snapshot string     `yaml:"snapshot"`
	Views    []GoldView `yaml:"views"`
}

// View returns the named view of the snapshot.
func (g *GoldManifest) View(name string) (GoldView, bool) {
	for _, v := range g.Views {
		if v.Name == name {
			return v, true
		}
	}
	return GoldView{}, false
}

// LoadGoldManifest reads the current Gold manifest from store. A Gold layer
// that was never committed returns a NotFoundError.
func LoadGoldManifest(ctx context.Context, store domain.ObjectStore) (*GoldManifest, error) {
	body, err := store.Get(ctx, GoldManifestObject)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	var m GoldManifest
	dec := yaml.NewDecoder(body)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", store.URI(GoldManifestObject), err)
	}
	if m.Snapshot == "" {
		return nil, domain.ErrValidation("%s names no snapshot", store.URI(GoldManifestObject))
	}
	return &m, nil
}

// goldFile is an encoded view waiting in the scratch directory.
type goldFile struct {
	view  aggregate.View
	local string
}

// snapshotID derives the snapshot name from the view definitions and the
// encoded bytes, so identical input commits the same snapshot again.
func snapshotID(files []goldFile) (string, error) {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%d:%s\n%d:%s\n", len(f.view.Name), f.view.Name,
			len(f.view.Dimensions), strings.Join(f.view.Dimensions, ","))
		fh, err := os.Open(f.local) //nolint:gosec // scratch file we created
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.local, err)
		}
		_, err = io.Copy(h, fh)
		_ = fh.Close()
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", f.local, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:16]), nil
}

// commitGold uploads every view under a fresh snapshot prefix and then
// replaces the manifest. A failure before the manifest Put leaves the
// previous snapshot current.
func commitGold(ctx context.Context, store domain.ObjectStore, files []goldFile) (*GoldManifest, error) {
	id, err := snapshotID(files)
	if err != nil {
		return nil, err
	}
	manifest := &GoldManifest{Snapshot: id, Views: make([]GoldView, 0, len(files))}
	for _, f := range files {
		object := path.Join(goldSnapshotPrefix, id, f.view.Name+".parquet")
		if err := upload(ctx, store, object, f.local); err != nil {
			return nil, err
		}
		manifest.Views = append(manifest.Views, GoldView{
			Name:       f.view.Name,
			Dimensions: f.view.Dimensions,
			Object:     object,
		})
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode gold manifest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.Put(ctx, GoldManifestObject, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("commit %s: %w", store.URI(GoldManifestObject), err)
	}
	return manifest, nil
}
