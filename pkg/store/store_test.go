package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/james-see/beatgrid/pkg/pattern"
)

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "beats", "beats.json")),
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, _ := pattern.New().Set(2, 9, true)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := repo.Load(ctx, "daily-1"); ok || err != nil {
				t.Fatalf("Load() on empty store = %v, %v", ok, err)
			}

			if err := repo.Save(ctx, "daily-1", p, 300, "Daily Beat #1"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			rec, ok, err := repo.Load(ctx, "daily-1")
			if err != nil || !ok {
				t.Fatalf("Load() = %v, %v", ok, err)
			}
			if rec.Pattern != p {
				t.Errorf("Load() pattern = %v, want %v", rec.Pattern, p)
			}
			if rec.BPM != pattern.MaxBPM {
				t.Errorf("Load() BPM = %d, want clamped %d", rec.BPM, pattern.MaxBPM)
			}
			if rec.Name != "Daily Beat #1" {
				t.Errorf("Load() Name = %q", rec.Name)
			}

			if err := repo.Save(ctx, "", p, 120, ""); !errors.Is(err, ErrEmptyKey) {
				t.Errorf("Save(\"\") error = %v, want ErrEmptyKey", err)
			}

			if err := repo.Delete(ctx, "daily-1"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, ok, _ := repo.Load(ctx, "daily-1"); ok {
				t.Error("record still present after Delete()")
			}
			if err := repo.Delete(ctx, "daily-1"); err != nil {
				t.Errorf("Delete() of a missing key error = %v", err)
			}
		})
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	m.Save(ctx, "a", pattern.New(), 120, "")
	m.Save(ctx, "b", pattern.New(), 120, "")
	m.Save(ctx, "c", pattern.New(), 120, "")

	recs, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{recs[0].Key, recs[1].Key, recs[2].Key}
	if strings.Join(got, ",") != "c,b,a" {
		t.Errorf("List() order = %v, want [c b a]", got)
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "beats.json")
	p, _ := pattern.New().Set(0, 0, true)

	if err := NewFileStore(path).Save(ctx, "k", p, 90, "mine"); err != nil {
		t.Fatal(err)
	}

	reopened := NewFileStore(path)
	rec, ok, err := reopened.Load(ctx, "k")
	if err != nil || !ok || rec.Pattern != p {
		t.Errorf("Load() after reopen = %+v, %v, %v", rec, ok, err)
	}
	recs, _ := reopened.List(ctx)
	if len(recs) != 1 {
		t.Errorf("List() len = %d, want 1", len(recs))
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beats.json")
	if err := os.WriteFile(path, []byte(`{"beats":{"k":{"grid":"01"}}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewFileStore(path).Load(context.Background(), "k"); !errors.Is(err, pattern.ErrInvalidPattern) {
		t.Errorf("Load() error = %v, want ErrInvalidPattern", err)
	}
}

func TestNewKey(t *testing.T) {
	a, b := NewKey(), NewKey()
	if a == b {
		t.Error("NewKey() returned duplicates")
	}
	if !strings.HasPrefix(a, "custom-") || len(a) != len("custom-")+36 {
		t.Errorf("NewKey() = %q", a)
	}
}
