package mesh

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
)

// ErrCorrupt is returned when encoded mesh bytes cannot be decoded.
var ErrCorrupt = errors.New("corrupt mesh encoding")

var magic = [4]byte{'S', 'C', 'M', '1'}

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

// Marshal encodes m as a zstd-compressed little-endian record: magic, point
// and index counts, then the float32 points and int32 indices.
func Marshal(m models.Mesh) ([]byte, error) {
	raw := make([]byte, 12+4*len(m.Points)+4*len(m.Triangles))
	copy(raw, magic[:])
	binary.LittleEndian.PutUint32(raw[4:], uint32(len(m.Points)))
	binary.LittleEndian.PutUint32(raw[8:], uint32(len(m.Triangles)))
	split := 12 + 4*len(m.Points)
	if len(m.Points) > 0 {
		if _, err := binary.Encode(raw[12:split], binary.LittleEndian, m.Points); err != nil {
			return nil, errors.Wrap(err, "encoding points")
		}
	}
	if len(m.Triangles) > 0 {
		if _, err := binary.Encode(raw[split:], binary.LittleEndian, m.Triangles); err != nil {
			return nil, errors.Wrap(err, "encoding triangles")
		}
	}

	var buf bytes.Buffer
	enc := zstdEncPool.Get().(*zstd.Encoder)
	defer zstdEncPool.Put(enc)
	enc.Reset(&buf)
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return nil, errors.Wrap(err, "compressing mesh")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "compressing mesh")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes bytes produced by Marshal and validates the mesh.
func Unmarshal(data []byte) (models.Mesh, error) {
	dec := zstdDecPool.Get().(*zstd.Decoder)
	defer zstdDecPool.Put(dec)
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return models.Mesh{}, errors.Wrap(ErrCorrupt, err.Error())
	}
	if len(raw) < 12 || !bytes.Equal(raw[:4], magic[:]) {
		return models.Mesh{}, errors.Wrap(ErrCorrupt, "bad header")
	}
	nPts := int(binary.LittleEndian.Uint32(raw[4:]))
	nIdx := int(binary.LittleEndian.Uint32(raw[8:]))
	if len(raw) != 12+4*nPts+4*nIdx {
		return models.Mesh{}, errors.Wrapf(ErrCorrupt, "%d bytes for %d points and %d indices", len(raw), nPts, nIdx)
	}

	var m models.Mesh
	if nPts > 0 {
		m.Points = make([]float32, nPts)
		if _, err := binary.Decode(raw[12:12+4*nPts], binary.LittleEndian, m.Points); err != nil {
			return models.Mesh{}, errors.Wrap(ErrCorrupt, err.Error())
		}
	}
	if nIdx > 0 {
		m.Triangles = make([]int32, nIdx)
		if _, err := binary.Decode(raw[12+4*nPts:], binary.LittleEndian, m.Triangles); err != nil {
			return models.Mesh{}, errors.Wrap(ErrCorrupt, err.Error())
		}
	}
	if err := m.Validate(); err != nil {
		return models.Mesh{}, errors.Wrap(ErrCorrupt, err.Error())
	}
	return m, nil
}
