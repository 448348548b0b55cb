// Package export writes the surfaces of a time point as a single STL file to
// a blob store and hands back a download URL.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/pkg/blob"
	"github.com/jilei-hao/scherzo/pkg/logging"
	"github.com/jilei-hao/scherzo/pkg/mesh"
	"github.com/jilei-hao/scherzo/pkg/stl"
)

// Format is an STL encoding.
type Format string

const (
	FormatBinary Format = "binary"
	FormatASCII  Format = "ascii"
)

const contentType = "model/stl"

var (
	// ErrTimePoint is returned for a time point outside the model set.
	ErrTimePoint = errors.New("time point out of range")

	// ErrNothingToExport is returned when every label of a time point is empty.
	ErrNothingToExport = errors.New("time point has no surface")
)

// Result describes one exported file.
type Result struct {
	TimePoint int
	Labels    int
	Points    int
	Triangles int
	Info      blob.Info

	// URL is empty when the store cannot presign
	URL string
}

// Exporter stores merged time points in a blob store.
type Exporter struct {
	store  blob.Store
	prefix string
	format Format

	// Overwrite replaces existing files instead of failing with blob.ErrExists
	Overwrite bool
}

// NewExporter returns an Exporter that writes under prefix in store.
func NewExporter(store blob.Store, prefix string, format Format) (*Exporter, error) {
	switch format {
	case FormatBinary, FormatASCII:
	case "":
		format = FormatBinary
	default:
		return nil, errors.Errorf("unknown STL format %q", format)
	}
	return &Exporter{store: store, prefix: prefix, format: format}, nil
}

// Key returns the object key of time point t.
func (e *Exporter) Key(name string, t int) string {
	return path.Join(e.prefix, fmt.Sprintf("%s_tp%03d.stl", name, t))
}

func (e *Exporter) encode(name string, m models.Mesh) ([]byte, error) {
	var buf bytes.Buffer
	tris := stl.FromMesh(m)
	var err error
	if e.format == FormatASCII {
		err = stl.WriteASCII(&buf, name, tris)
	} else {
		err = stl.Write(&buf, name, tris)
	}
	return buf.Bytes(), err
}

// ExportTimePoint merges every label of time point t into one mesh and stores
// it as name_tpNNN.stl.
func (e *Exporter) ExportTimePoint(ctx context.Context, set models.ModelSet, t int, name string) (Result, error) {
	if t < 0 || t >= set.TimePoints() {
		return Result{}, errors.Wrapf(ErrTimePoint, "%d of %d", t, set.TimePoints())
	}
	merged := mesh.MergeTimePoint(set[t])
	if merged.IsEmpty() {
		return Result{}, errors.Wrapf(ErrNothingToExport, "time point %d", t)
	}

	data, err := e.encode(fmt.Sprintf("%s time point %d", name, t), merged)
	if err != nil {
		return Result{}, err
	}

	key := e.Key(name, t)
	if e.Overwrite {
		if _, err := e.store.Delete(ctx, key); err != nil {
			return Result{}, err
		}
	}
	info, err := e.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"timePoint": strconv.Itoa(t),
			"labels":    strconv.Itoa(len(set[t])),
			"format":    string(e.format),
		},
	})
	if err != nil {
		return Result{}, errors.Wrapf(err, "storing time point %d", t)
	}

	res := Result{
		TimePoint: t,
		Labels:    len(set[t]),
		Points:    merged.PointCount(),
		Triangles: merged.TriangleCount(),
		Info:      info,
	}
	url, err := e.store.PresignURL(ctx, key, blob.SignedURLOptions{})
	switch {
	case err == nil:
		res.URL = url
	case errors.Is(err, blob.ErrUnsupported):
	default:
		return res, errors.Wrapf(err, "presigning %s", key)
	}

	logging.Infof("Exported time point %d to %s (%s, %s triangles)", t, key,
		humanize.Bytes(uint64(info.Size)), humanize.Comma(int64(res.Triangles)))
	return res, nil
}

// ExportAll exports every time point of set. Time points without any surface
// are skipped.
func (e *Exporter) ExportAll(ctx context.Context, set models.ModelSet, name string) ([]Result, error) {
	var results []Result
	for t := range set {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.ExportTimePoint(ctx, set, t, name)
		if errors.Is(err, ErrNothingToExport) {
			logging.Warningf("Skipping export of time point %d: no surface", t)
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
