package entity

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// StoreVersion is the current version of the registry file format
const StoreVersion = 1

// Store persists registry entries
type Store interface {
	Load() ([]Entry, error)
	Save(entries []Entry) error
}

type storeFile struct {
	Version int     `cbor:"1,keyasint"`
	Entries []Entry `cbor:"2,keyasint"`
}

var (
	storeEncMode cbor.EncMode
	storeDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	storeEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create registry CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthAllowed,
	}
	storeDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create registry CBOR decoder mode: %v", err))
	}
}

// FileStore keeps the registry in a single CBOR file
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store writing to path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the registry file. A missing file is an empty registry.
func (s *FileStore) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var f storeFile
	if err := storeDecMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	if f.Version > StoreVersion {
		return nil, fmt.Errorf("registry file %s has unsupported version %d", s.path, f.Version)
	}
	return f.Entries, nil
}

// Save writes entries to a temp file and renames it over the registry file
func (s *FileStore) Save(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := storeEncMode.Marshal(storeFile{Version: StoreVersion, Entries: entries})
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// MemoryStore keeps a copy of the last saved entries
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	saves   int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the saved entries
func (s *MemoryStore) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...), nil
}

// Save replaces the stored entries and counts the call
func (s *MemoryStore) Save(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry(nil), entries...)
	s.saves++
	return nil
}

// Saves returns how many times Save was called
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
