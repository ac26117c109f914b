package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/domain"
)

// FileStore keeps the whole Snapshot in one JSON file. Every mutation is a
// read-modify-write under an in-process lock, and the file is replaced by
// rename so a crash mid-write never truncates earlier reports. Writers in
// other processes are not coordinated.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &FileStore{path: path}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.save(NewSnapshot()); err != nil {
			return nil, err
		}
		return s, nil
	}
	// Loading once upgrades an older flat layout in place.
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	snap, upgraded, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if upgraded {
		log.WithFields(log.Fields{
			"path":  s.path,
			"users": len(snap.Users),
		}).Info("Upgraded flat report list to per-user layout")
		if err := s.save(snap); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *FileStore) save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".reports-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) FindUserByKey(ctx context.Context, key string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	u, ok := snap.Users[key]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *FileStore) CreateUser(ctx context.Context, key string, u domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	if existing, ok := snap.Users[key]; ok {
		return &existing, nil
	}
	stored := snap.AddUser(key, u)
	if err := s.save(snap); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *FileStore) AppendReport(ctx context.Context, userID domain.UserID, r domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}
	snap.Append(userID, r)
	return s.save(snap)
}

func (s *FileStore) ListReportsByUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	return snap.List(userID, limit), nil
}

// Snapshot returns the current persisted state.
func (s *FileStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}
