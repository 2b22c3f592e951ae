// Package store persists named and dated beats behind a small key-value contract.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/james-see/beatgrid/pkg/pattern"
)

// ErrEmptyKey is returned when saving under an empty key
var ErrEmptyKey = errors.New("empty key")

// Record is one saved beat
type Record struct {
	Key       string          `json:"key"`
	Name      string          `json:"name,omitempty"`
	BPM       int             `json:"bpm"`
	Pattern   pattern.Pattern `json:"-"`
	Grid      string          `json:"grid"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Repository loads and saves beats by key
type Repository interface {
	// Load returns the record for key; ok is false when nothing is stored
	Load(ctx context.Context, key string) (rec Record, ok bool, err error)
	Save(ctx context.Context, key string, p pattern.Pattern, bpm int, name string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Record, error)
}

// NewKey returns a fresh key for a custom beat
func NewKey() string {
	return "custom-" + uuid.NewString()
}

func newRecord(key string, p pattern.Pattern, bpm int, name string, now time.Time) Record {
	return Record{
		Key:       key,
		Name:      name,
		BPM:       pattern.ClampBPM(bpm),
		Pattern:   p,
		Grid:      p.Bits(),
		UpdatedAt: now.UTC(),
	}
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].UpdatedAt.After(recs[j].UpdatedAt)
		}
		return recs[i].Key < recs[j].Key
	})
}

// MemoryStore keeps records in a map
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory repository
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

// Load implements Repository
func (m *MemoryStore) Load(ctx context.Context, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	return rec, ok, nil
}

// Save implements Repository
func (m *MemoryStore) Save(ctx context.Context, key string, p pattern.Pattern, bpm int, name string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = newRecord(key, p, bpm, name, m.now())
	return nil
}

// Delete implements Repository
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// List implements Repository, newest first
func (m *MemoryStore) List(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		recs = append(recs, r)
	}
	sortRecords(recs)
	return recs, nil
}

// FileStore keeps every record in one JSON document
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

type fileDocument struct {
	Version int               `json:"version"`
	Beats   map[string]Record `json:"beats"`
}

// NewFileStore stores records in the JSON file at path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) read() (fileDocument, error) {
	doc := fileDocument{Version: 1, Beats: make(map[string]Record)}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("failed to read store: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse store %s: %w", f.path, err)
	}
	if doc.Beats == nil {
		doc.Beats = make(map[string]Record)
	}
	for key, rec := range doc.Beats {
		p, err := pattern.ParseBits(rec.Grid)
		if err != nil {
			return doc, fmt.Errorf("record %q: %w", key, err)
		}
		rec.Pattern = p
		doc.Beats[key] = rec
	}
	return doc, nil
}

func (f *FileStore) write(doc fileDocument) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}

// Load implements Repository
func (f *FileStore) Load(ctx context.Context, key string) (Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := doc.Beats[key]
	return rec, ok, nil
}

// Save implements Repository
func (f *FileStore) Save(ctx context.Context, key string, p pattern.Pattern, bpm int, name string) error {
	if key == "" {
		return ErrEmptyKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Beats[key] = newRecord(key, p, bpm, name, f.now())
	return f.write(doc)
}

// Delete implements Repository
func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Beats[key]; !ok {
		return nil
	}
	delete(doc.Beats, key)
	return f.write(doc)
}

// List implements Repository, newest first
func (f *FileStore) List(ctx context.Context) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(doc.Beats))
	for _, r := range doc.Beats {
		recs = append(recs, r)
	}
	sortRecords(recs)
	return recs, nil
}
