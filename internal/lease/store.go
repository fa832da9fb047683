package lease

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/petward/server/internal/nbt"
)

// Store persists per-owner lease records between sessions.
type Store interface {
	Load(ctx context.Context, owner uuid.UUID) (Records, error)
	Save(ctx context.Context, owner uuid.UUID, r Records) error
	Delete(ctx context.Context, owner uuid.UUID) error
}

// FileStore keeps one gzip-compressed tag file per owner, <dir>/<uuid>.dat.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lease dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(owner uuid.UUID) string {
	return filepath.Join(s.dir, owner.String()+".dat")
}

// Load returns empty records when the owner has no file yet.
func (s *FileStore) Load(_ context.Context, owner uuid.UUID) (Records, error) {
	data, err := os.ReadFile(s.path(owner))
	if errors.Is(err, os.ErrNotExist) {
		return Records{}, nil
	}
	if err != nil {
		return Records{}, fmt.Errorf("read leases: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return Records{}, fmt.Errorf("open leases %s: %w", owner, err)
	}
	defer zr.Close()
	root, _, err := nbt.Decode(zr)
	if err != nil {
		return Records{}, fmt.Errorf("decode leases %s: %w", owner, err)
	}
	return UnmarshalRecords(root), nil
}

// Save writes to a temp file and renames it over the old one.
func (s *FileStore) Save(_ context.Context, owner uuid.UUID, r Records) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := nbt.Encode(zw, "", r.MarshalNBT()); err != nil {
		return fmt.Errorf("encode leases: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress leases: %w", err)
	}

	path := s.path(owner)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write leases: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace leases: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, owner uuid.UUID) error {
	err := os.Remove(s.path(owner))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete leases: %w", err)
	}
	return nil
}
