package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/johnwmail/pastebin/models"
)

const lockStripes = 256

// FilesystemStore keeps one JSON file per paste. Increments are serialized by
// an in-process lock, so it is only safe for a single instance.
type FilesystemStore struct {
	dataDir string
	logger  *slog.Logger
	locks   [lockStripes]sync.Mutex
}

// NewFilesystemStore creates the data directory if needed.
func NewFilesystemStore(dataDir string, logger *slog.Logger) (*FilesystemStore, error) {
	if dataDir == "" {
		return nil, errors.New("filesystem store: data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem store: %w", err)
	}
	return &FilesystemStore{
		dataDir: dataDir,
		logger:  loggerOrDefault(logger),
	}, nil
}

func (s *FilesystemStore) path(id string) string {
	return filepath.Join(s.dataDir, strings.ReplaceAll(Key(id), ":", "_")+".json")
}

func (s *FilesystemStore) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

// Put writes via a temp file and rename so readers never see a partial record.
func (s *FilesystemStore) Put(ctx context.Context, id string, paste *models.Paste) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodePaste(paste)
	if err != nil {
		return err
	}
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()
	return s.writeFile(id, data)
}

func (s *FilesystemStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()
	return s.read(id)
}

func (s *FilesystemStore) IncrementViews(ctx context.Context, id string) (*models.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	paste, err := s.read(id)
	if err != nil || paste == nil {
		return nil, err
	}
	paste.Views++
	data, err := encodePaste(paste)
	if err != nil {
		return nil, err
	}
	if err := s.writeFile(id, data); err != nil {
		return nil, err
	}
	return paste, nil
}

// Ping verifies the data directory is still there.
func (s *FilesystemStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dataDir)
	}
	return nil
}

func (s *FilesystemStore) Close() error {
	return nil
}

func (s *FilesystemStore) read(id string) (*models.Paste, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		s.logger.Error("failed to read paste file", "id", id, "error", err)
		return nil, err
	}
	return decodeOrAbsent(s.logger, "filesystem", id, data), nil
}

func (s *FilesystemStore) writeFile(id string, data []byte) error {
	tmp, err := os.CreateTemp(s.dataDir, ".paste-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		_ = os.Remove(tmpName)
		s.logger.Error("failed to write paste file", "id", id, "error", err)
		return err
	}
	return nil
}
