package blob

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

type memoryEntry struct {
	info Info
	data []byte
}

// Memory is a Store held in process memory.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memoryEntry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{objs: make(map[string]memoryEntry)} }

func (s *Memory) Driver() Driver { return DriverMemory }

func (s *Memory) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if err := checkKey(key); err != nil {
		return Info{}, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return Info{}, errors.Wrapf(err, "reading blob %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return Info{}, errors.Wrap(ErrExists, key)
	}
	info := Info{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		ETag:         strconv.FormatUint(xxhash.Sum64(b), 16),
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.objs[key] = memoryEntry{info: info, data: b}
	return info, nil
}

func (s *Memory) lookup(key string) (memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objs[key]
	if !ok {
		return memoryEntry{}, errors.Wrap(ErrNotFound, key)
	}
	obj.info.Metadata = cloneMetadata(obj.info.Metadata)
	return obj, nil
}

func (s *Memory) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	obj, err := s.lookup(key)
	if err != nil {
		return Info{}, nil, err
	}
	// stored bytes are never mutated, so readers can share them
	return obj.info, io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Memory) Head(_ context.Context, key string) (Info, error) {
	obj, err := s.lookup(key)
	return obj.info, err
}

func (s *Memory) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; !ok {
		return false, nil
	}
	delete(s.objs, key)
	return true, nil
}

func (s *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []Info
	for k, obj := range s.objs {
		if strings.HasPrefix(k, prefix) {
			info := obj.info
			info.Metadata = cloneMetadata(info.Metadata)
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns an opaque URL; the memory store has no way to serve it.
func (s *Memory) PresignURL(_ context.Context, key string, opts SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", ErrUnsupported
	}
	if _, err := s.lookup(key); err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "memory", Host: "blob", Path: "/" + key}).String(), nil
}
