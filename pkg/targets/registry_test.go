package targets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/face"
	"github.com/teslashibe/go-grok-pilot/pkg/geom"
)

func testRegistry(t *testing.T, opts ...Option) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.json")
	opts = append([]Option{WithPath(path), WithLogger(log.Discard())}, opts...)
	r, err := NewRegistry(opts...)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return r, path
}

func TestAdd(t *testing.T) {
	r, _ := testRegistry(t)

	tg, err := r.Add("Alice", "red jacket", []float64{3, 4})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !strings.HasPrefix(tg.ID, "target_") || len(tg.ID) != len("target_")+8 {
		t.Errorf("unexpected id %q", tg.ID)
	}
	if tg.Status != StatusSearching {
		t.Errorf("expected searching, got %s", tg.Status)
	}
	if got := tg.Embeddings[0]; got[0] != 0.6 || got[1] != 0.8 {
		t.Errorf("embedding not normalized: %v", got)
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 target, got %d", r.Count())
	}
}

func TestAddRequiresName(t *testing.T) {
	r, _ := testRegistry(t)
	if _, err := r.Add("  ", ""); !errors.Is(err, ErrNoName) {
		t.Errorf("expected ErrNoName, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r, _ := testRegistry(t)
	tg, _ := r.Add("Bob", "", []float64{1, 0})

	got, err := r.Get(tg.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.Embeddings[0][0] = 42
	got.Name = "Mallory"

	again, _ := r.Get(tg.ID)
	if again.Name != "Bob" || again.Embeddings[0][0] != 1 {
		t.Error("mutating a returned target changed the registry")
	}
}

func TestGetMissing(t *testing.T) {
	r, _ := testRegistry(t)
	if _, err := r.Get("target_nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByName(t *testing.T) {
	r, _ := testRegistry(t)
	tg, _ := r.Add("Carol Danvers", "")

	got, err := r.FindByName("carol danvers")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if got.ID != tg.ID {
		t.Errorf("expected %s, got %s", tg.ID, got.ID)
	}

	viaLookup, err := r.Lookup("CAROL DANVERS")
	if err != nil || viaLookup.ID != tg.ID {
		t.Errorf("Lookup by name failed: %v", err)
	}
	viaID, err := r.Lookup(tg.ID)
	if err != nil || viaID.ID != tg.ID {
		t.Errorf("Lookup by id failed: %v", err)
	}
}

func TestMarkFoundAndConfirmed(t *testing.T) {
	r, _ := testRegistry(t)
	tg, _ := r.Add("Dave", "")

	if err := r.MarkFound(tg.ID, 0.82); err != nil {
		t.Fatalf("MarkFound failed: %v", err)
	}
	got, _ := r.Get(tg.ID)
	if got.Status != StatusFound || got.MatchConfidence != 0.82 || got.FoundAt == nil {
		t.Errorf("unexpected target after MarkFound: %+v", got)
	}

	if err := r.MarkConfirmed(tg.ID); err != nil {
		t.Fatalf("MarkConfirmed failed: %v", err)
	}
	if err := r.MarkFound(tg.ID, 0.6); err != nil {
		t.Fatalf("MarkFound failed: %v", err)
	}
	got, _ = r.Get(tg.ID)
	if got.Status != StatusConfirmed {
		t.Errorf("confirmed target was downgraded to %s", got.Status)
	}

	if err := r.Reset(tg.ID); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	got, _ = r.Get(tg.ID)
	if got.Status != StatusSearching || got.FoundAt != nil {
		t.Errorf("unexpected target after Reset: %+v", got)
	}
}

func TestDelete(t *testing.T) {
	r, _ := testRegistry(t)
	tg, _ := r.Add("Eve", "")

	if err := r.Delete(tg.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := r.Delete(tg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPersistence(t *testing.T) {
	r, path := testRegistry(t)
	a, _ := r.Add("Frank", "tall", []float64{0, 1})
	b, _ := r.Add("Grace", "")
	_ = r.MarkFound(b.ID, 0.9)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("registry file not written: %v", err)
	}

	reloaded, err := NewRegistry(WithPath(path), WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Count() != 2 {
		t.Fatalf("expected 2 targets after reload, got %d", reloaded.Count())
	}
	got, _ := reloaded.Get(a.ID)
	if got.Description != "tall" || len(got.Embeddings) != 1 {
		t.Errorf("unexpected reloaded target: %+v", got)
	}
	got, _ = reloaded.Get(b.ID)
	if got.Status != StatusFound {
		t.Errorf("expected found, got %s", got.Status)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRegistry(WithPath(path), WithLogger(log.Discard())); err == nil {
		t.Error("expected error for corrupt registry file")
	}
}

func TestInMemory(t *testing.T) {
	r, err := NewRegistry(WithLogger(log.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add("Heidi", ""); err != nil {
		t.Errorf("in-memory Add failed: %v", err)
	}
	if len(r.List()) != 1 {
		t.Errorf("expected 1 target")
	}
}

func TestEnroll(t *testing.T) {
	x := face.NewMock(
		face.Observation{Embedding: []float64{1, 0}, Score: 0.7, BBox: geom.BBox{W: 0.1, H: 0.1}},
		face.Observation{Embedding: []float64{0, 1}, Score: 0.95, BBox: geom.BBox{W: 0.2, H: 0.2}},
	)
	r, _ := testRegistry(t, WithExtractor(x))
	tg, _ := r.Add("Ivan", "")

	got, err := r.Enroll(context.Background(), tg.ID, []byte("jpeg"))
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if len(got.Embeddings) != 1 || got.Embeddings[0][1] != 1 {
		t.Errorf("expected the highest scoring face, got %v", got.Embeddings)
	}
}

func TestEnrollNoFace(t *testing.T) {
	r, _ := testRegistry(t, WithExtractor(face.NewMock()))
	tg, _ := r.Add("Judy", "")
	if _, err := r.Enroll(context.Background(), tg.ID, []byte("jpeg")); !errors.Is(err, ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
}

func TestEnrollWithoutExtractor(t *testing.T) {
	r, _ := testRegistry(t)
	tg, _ := r.Add("Ken", "")
	if _, err := r.Enroll(context.Background(), tg.ID, []byte("jpeg")); err == nil {
		t.Error("expected error without extractor")
	}
}
