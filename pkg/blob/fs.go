package blob

import (
	"context"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const metaSuffix = ".meta"

// Filesystem is a Store that maps keys to files under a root directory.
// Each blob has a YAML sidecar (filename + ".meta") holding its Info.
type Filesystem struct {
	root string
}

// NewFilesystem returns a store rooted at root, creating the directory if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "output"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating blob root %s", root)
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() Driver { return DriverFilesystem }

// Root returns the directory the store writes to.
func (s *Filesystem) Root() string { return s.root }

func (s *Filesystem) pathFor(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasSuffix(clean, metaSuffix) {
		return "", errors.Wrapf(ErrInvalidKey, "key %q uses the metadata suffix", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Filesystem) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return Info{}, errors.Wrap(ErrExists, key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, errors.Wrapf(err, "creating directory for %s", key)
	}

	// stream into a temp file, then move it into place
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return Info{}, errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())

	h := xxhash.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return Info{}, errors.Wrapf(err, "writing blob %s", key)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, errors.Wrapf(err, "closing blob %s", key)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return Info{}, errors.Wrapf(err, "storing blob %s", key)
	}

	info := Info{
		Key:          key,
		Size:         size,
		ContentType:  opts.ContentType,
		ETag:         strconv.FormatUint(h.Sum64(), 16),
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	meta, err := yaml.Marshal(info)
	if err != nil {
		return Info{}, errors.Wrap(err, "encoding blob metadata")
	}
	if err := os.WriteFile(dataPath+metaSuffix, meta, 0o644); err != nil {
		return Info{}, errors.Wrap(err, "writing blob metadata")
	}
	return info, nil
}

func readMeta(path string) (Info, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := yaml.Unmarshal(b, &info); err != nil {
		return Info{}, errors.Wrapf(err, "decoding %s", path)
	}
	return info, nil
}

func (s *Filesystem) Head(_ context.Context, key string) (Info, error) {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	info, err := readMeta(dataPath + metaSuffix)
	return info, errors.Wrap(err, key)
}

func (s *Filesystem) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	dataPath, _ := s.pathFor(key)
	f, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, nil, errors.Wrap(ErrNotFound, key)
	}
	if err != nil {
		return Info{}, nil, errors.Wrapf(err, "opening blob %s", key)
	}
	return info, f, nil
}

func (s *Filesystem) Delete(_ context.Context, key string) (bool, error) {
	dataPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errors.Wrapf(err, "deleting blob %s", key)
	}
	os.Remove(dataPath + metaSuffix)
	return true, nil
}

func (s *Filesystem) List(_ context.Context, prefix string) ([]Info, error) {
	var infos []Info
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		info, err := readMeta(path)
		if err != nil {
			return err
		}
		if strings.HasPrefix(info.Key, prefix) {
			infos = append(infos, info)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing blobs")
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns a file URL; local files need no signature.
func (s *Filesystem) PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", ErrUnsupported
	}
	if _, err := s.Head(ctx, key); err != nil {
		return "", err
	}
	dataPath, _ := s.pathFor(key)
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return "", errors.Wrap(err, "resolving blob path")
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
