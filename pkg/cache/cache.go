// Package cache keeps generated label meshes for the lifetime of a session so
// that repeated requests for the same mask and options skip extraction.
package cache

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/coocood/freecache"
	"github.com/pkg/errors"

	"github.com/jilei-hao/scherzo/internal/models"
	"github.com/jilei-hao/scherzo/pkg/isosurface"
	"github.com/jilei-hao/scherzo/pkg/logging"
	"github.com/jilei-hao/scherzo/pkg/mesh"
)

// minSize is the smallest cache freecache will allocate.
const minSize = 512 * 1024

// Cache is an in-memory mesh cache. Values are stored compressed and split
// into chunks that fit freecache's per-entry limit. A nil *Cache is valid and
// caches nothing.
type Cache struct {
	fc        *freecache.Cache
	chunkSize int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns a cache of roughly sizeBytes.
func New(sizeBytes int) *Cache {
	if sizeBytes < minSize {
		sizeBytes = minSize
	}
	logging.Debugf("Created freecache of ~ %d MB for meshes.", sizeBytes>>20)
	return &Cache{
		fc: freecache.NewCache(sizeBytes),
		// freecache refuses entries above 1/1024 of its size, header and key included
		chunkSize: sizeBytes/1024 - 64,
	}
}

// Key identifies the mesh generated from mask with opts. The label value is
// not part of the key; equal masks give equal meshes.
func Key(mask *models.BinaryMask, opts isosurface.Options) []byte {
	d := xxhash.New()
	fmt.Fprintf(d, "%v|%v|%v|%v|", mask.Size, mask.Spacing, mask.Origin, mask.Direction)
	fmt.Fprintf(d, "%v|%v|%v|%v|%v|%v|%v|%v|",
		opts.GaussianSigma, opts.SmoothingPassband, opts.DecimationTargetReduction,
		opts.SmoothingIterations, opts.FeatureAngle, opts.EdgeAngle,
		opts.FeatureEdgeSmoothing, opts.ApplyRASTransform)
	binary.Write(d, binary.LittleEndian, mask.Data)

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, d.Sum64())
	return key
}

func chunkKey(key []byte, i int) []byte {
	k := make([]byte, len(key)+4)
	copy(k, key)
	binary.BigEndian.PutUint32(k[len(key):], uint32(i)+1)
	return k
}

// Get returns the cached mesh for key.
func (c *Cache) Get(key []byte) (models.Mesh, bool) {
	if c == nil {
		return models.Mesh{}, false
	}
	m, err := c.get(key)
	if err != nil {
		if !errors.Is(err, freecache.ErrNotFound) {
			logging.Warningf("mesh cache: %v", err)
		}
		c.misses.Add(1)
		return models.Mesh{}, false
	}
	c.hits.Add(1)
	return m, true
}

func (c *Cache) get(key []byte) (models.Mesh, error) {
	head, err := c.fc.Get(key)
	if err != nil {
		return models.Mesh{}, err
	}
	if len(head) != 4 {
		return models.Mesh{}, errors.Errorf("bad chunk header of %d bytes", len(head))
	}
	n := int(binary.BigEndian.Uint32(head))
	var data []byte
	for i := 0; i < n; i++ {
		chunk, err := c.fc.Get(chunkKey(key, i))
		if err != nil {
			// an evicted chunk makes the whole entry a miss
			return models.Mesh{}, err
		}
		data = append(data, chunk...)
	}
	return mesh.Unmarshal(data)
}

// Put stores m under key. Chunks are written before the header, so a reader
// never sees a header without its data.
func (c *Cache) Put(key []byte, m models.Mesh) error {
	if c == nil {
		return nil
	}
	data, err := mesh.Marshal(m)
	if err != nil {
		return err
	}
	n := 0
	for off := 0; off < len(data); off += c.chunkSize {
		end := min(off+c.chunkSize, len(data))
		if err := c.fc.Set(chunkKey(key, n), data[off:end], 0); err != nil {
			return errors.Wrapf(err, "storing chunk %d", n)
		}
		n++
	}
	head := make([]byte, 4)
	binary.BigEndian.PutUint32(head, uint32(n))
	return errors.Wrap(c.fc.Set(key, head, 0), "storing header")
}

// Hits returns the number of successful lookups.
func (c *Cache) Hits() uint64 {
	if c == nil {
		return 0
	}
	return c.hits.Load()
}

// Misses returns the number of failed lookups.
func (c *Cache) Misses() uint64 {
	if c == nil {
		return 0
	}
	return c.misses.Load()
}

// Entries returns the number of stored records, chunks included.
func (c *Cache) Entries() int64 {
	if c == nil {
		return 0
	}
	return c.fc.EntryCount()
}

// Clear drops every cached mesh.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.fc.Clear()
}
