package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/nhle/mailvault/internal/model"
)

// FileStore keeps each cursor slot as a small JSON object named
// cursor-<slot>.json inside a fixed folder. Writes go through a temp file
// and rename so a reader never observes a torn cursor.
//
// Save is serialized within the process; writers in other processes are
// only protected by the re-read before each write.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	slots map[string]*sync.Mutex
}

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store directory is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cursor directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
		slots:  make(map[string]*sync.Mutex),
	}, nil
}

// Cursor returns the cursor slot with the given name.
func (s *FileStore) Cursor(slot string) CursorStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.slots[slot]
	if !ok {
		lock = &sync.Mutex{}
		s.slots[slot] = lock
	}
	return &fileCursor{
		path:   filepath.Join(s.dir, "cursor-"+slotFileName(slot)+".json"),
		slot:   slot,
		lock:   lock,
		logger: s.logger,
	}
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}

var unsafeSlotChars = regexp.MustCompile(`[^A-Za-z0-9._@-]+`)

func slotFileName(slot string) string {
	name := unsafeSlotChars.ReplaceAllString(slot, "_")
	if name == "" {
		return "default"
	}
	return name
}

type fileCursor struct {
	path   string
	slot   string
	lock   *sync.Mutex
	logger *slog.Logger
}

func (c *fileCursor) Load(_ context.Context) (*model.Cursor, error) {
	return c.read()
}

func (c *fileCursor) read() (*model.Cursor, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cursor file %s: %w", c.path, err)
	}

	var cur model.Cursor
	if err := json.Unmarshal(data, &cur); err != nil {
		return nil, fmt.Errorf("decoding cursor file %s: %w", c.path, err)
	}
	return &cur, nil
}

func (c *fileCursor) Save(
	ctx context.Context,
	next model.Position,
	expectedPrior *model.Position,
) (bool, error) {
	if err := next.CheckStorable(); err != nil {
		return false, fmt.Errorf("saving cursor %s: %w", c.slot, err)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	stored, err := c.read()
	if err != nil {
		return false, err
	}
	if stored != nil && stored.Position >= next {
		return false, nil
	}
	if stored != nil && expectedPrior != nil && stored.Position < *expectedPrior {
		c.logger.Warn("cursor below expected prior, advancing anyway",
			"slot", c.slot, "stored", uint64(stored.Position),
			"expected_prior", uint64(*expectedPrior), "next", uint64(next))
	}

	data, err := json.Marshal(model.Cursor{
		Slot:      c.slot,
		Position:  next,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("encoding cursor: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".cursor-*.tmp")
	if err != nil {
		return false, fmt.Errorf("creating temp cursor file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("writing temp cursor file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("syncing temp cursor file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("closing temp cursor file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return false, fmt.Errorf("replacing cursor file %s: %w", c.path, err)
	}
	return true, nil
}
