// Package rawvolume reads and writes label volumes stored as a YAML header
// next to a raw voxel file, optionally gzip-compressed.
//
// Example header:
//
//	size: [128, 128, 64, 10]
//	spacing: [0.8, 0.8, 1.5, 1]
//	origin: [0, 0, 0, 0]
//	dataType: int16
//	byteOrder: little
//	dataFile: heart.raw.gz
package rawvolume

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/pkg/volume"
)

// ErrHeader is returned for headers that cannot describe a volume.
var ErrHeader = errors.New("invalid volume header")

// Header describes the voxel file.
type Header struct {
	Size      []int     `yaml:"size"`
	Spacing   []float64 `yaml:"spacing,omitempty"`
	Origin    []float64 `yaml:"origin,omitempty"`
	Direction []float64 `yaml:"direction,omitempty"`

	// DataType is one of uint8, int8, uint16, int16, uint32, int32
	DataType string `yaml:"dataType"`

	// ByteOrder is little (default) or big
	ByteOrder string `yaml:"byteOrder,omitempty"`

	// DataFile is resolved relative to the header; a .gz suffix means gzip
	DataFile string `yaml:"dataFile"`
}

func elementSize(dataType string) int {
	switch dataType {
	case "uint8", "int8":
		return 1
	case "uint16", "int16":
		return 2
	case "uint32", "int32":
		return 4
	}
	return 0
}

func (h *Header) order() (binary.ByteOrder, error) {
	switch strings.ToLower(h.ByteOrder) {
	case "", "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	}
	return nil, errors.Wrapf(ErrHeader, "byte order %q", h.ByteOrder)
}

func ones(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func identity(n int) []float64 {
	d := make([]float64, n*n)
	for i := 0; i < n; i++ {
		d[i*n+i] = 1
	}
	return d
}

// Load reads the volume described by the header at path.
func Load(path string) (*models.Volume, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading volume header")
	}
	var h Header
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return nil, errors.Wrapf(ErrHeader, "%s: %v", path, err)
	}
	if h.DataFile == "" {
		return nil, errors.Wrapf(ErrHeader, "%s: no dataFile", path)
	}
	dataPath := h.DataFile
	if !filepath.IsAbs(dataPath) {
		dataPath = filepath.Join(filepath.Dir(path), dataPath)
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening voxel file")
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(dataPath, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "decompressing %s", dataPath)
		}
		defer zr.Close()
		r = zr
	}
	return Decode(&h, r)
}

// Decode reads the voxels described by h from r.
func Decode(h *Header, r io.Reader) (*models.Volume, error) {
	rank := len(h.Size)
	if rank != 3 && rank != 4 {
		return nil, errors.Wrapf(volume.ErrUnsupportedDimensionality, "header has %d sizes", rank)
	}
	elem := elementSize(h.DataType)
	if elem == 0 {
		return nil, errors.Wrapf(ErrHeader, "data type %q", h.DataType)
	}
	order, err := h.order()
	if err != nil {
		return nil, err
	}

	v := &models.Volume{
		Size:      append([]int(nil), h.Size...),
		Spacing:   h.Spacing,
		Origin:    h.Origin,
		Direction: h.Direction,
	}
	if v.Spacing == nil {
		v.Spacing = ones(rank, 1)
	}
	if v.Origin == nil {
		v.Origin = ones(rank, 0)
	}
	if v.Direction == nil {
		v.Direction = identity(rank)
	}

	n := v.VoxelCount()
	if n <= 0 {
		return nil, errors.Wrapf(ErrHeader, "size %v", h.Size)
	}
	buf := make([]byte, n*elem)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrapf(volume.ErrVoxelCountMismatch, "expected %d bytes: %v", len(buf), err)
	}

	v.Data = make([]int32, n)
	for i := range v.Data {
		b := buf[i*elem:]
		switch h.DataType {
		case "uint8":
			v.Data[i] = int32(b[0])
		case "int8":
			v.Data[i] = int32(int8(b[0]))
		case "uint16":
			v.Data[i] = int32(order.Uint16(b))
		case "int16":
			v.Data[i] = int32(int16(order.Uint16(b)))
		case "uint32":
			u := order.Uint32(b)
			if u > math.MaxInt32 {
				return nil, errors.Errorf("voxel %d: label %d does not fit int32", i, u)
			}
			v.Data[i] = int32(u)
		case "int32":
			v.Data[i] = int32(order.Uint32(b))
		}
	}

	if err := volume.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Save writes v as int32 little-endian voxels to dataFile next to the header
// at path. A dataFile ending in .gz is compressed.
func Save(path string, v *models.Volume, dataFile string) error {
	if err := volume.Validate(v); err != nil {
		return err
	}
	h := Header{
		Size:      v.Size,
		Spacing:   v.Spacing,
		Origin:    v.Origin,
		Direction: v.Direction,
		DataType:  "int32",
		ByteOrder: "little",
		DataFile:  dataFile,
	}
	head, err := yaml.Marshal(&h)
	if err != nil {
		return errors.Wrap(err, "encoding volume header")
	}
	if err := os.WriteFile(path, head, 0644); err != nil {
		return errors.Wrap(err, "writing volume header")
	}

	f, err := os.Create(filepath.Join(filepath.Dir(path), dataFile))
	if err != nil {
		return errors.Wrap(err, "creating voxel file")
	}
	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var zw *gzip.Writer
	if strings.HasSuffix(dataFile, ".gz") {
		zw = gzip.NewWriter(bw)
		w = zw
	}
	err = binary.Write(w, binary.LittleEndian, v.Data)
	if zw != nil && err == nil {
		err = zw.Close()
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.Wrap(err, "writing voxel file")
}
