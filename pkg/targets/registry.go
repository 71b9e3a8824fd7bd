package targets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/face"
)

// Registry holds targets in memory and, when a path is set, persists
// them to a JSON file after every change.
type Registry struct {
	mu      sync.RWMutex
	path    string
	targets map[string]*Target
	faces   face.Extractor
	logger  *slog.Logger
}

// registryData is the JSON structure for the registry file.
type registryData struct {
	Version   int       `json:"version"`
	UpdatedAt string    `json:"updated_at"`
	Targets   []*Target `json:"targets"`
}

const currentVersion = 1

// Option configures a Registry.
type Option func(*Registry)

// WithPath persists the registry to path.
func WithPath(path string) Option {
	return func(r *Registry) { r.path = path }
}

// WithExtractor enables photo enrollment.
func WithExtractor(x face.Extractor) Option {
	return func(r *Registry) { r.faces = x }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a registry, loading the file at the configured path
// if it exists.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{targets: make(map[string]*Target)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.L()
	}
	r.logger = r.logger.With("component", "targets.registry")

	if r.path == "" {
		return r, nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return nil, fmt.Errorf("targets: create directory: %w", err)
	}
	if _, err := os.Stat(r.path); err == nil {
		if err := r.load(); err != nil {
			return nil, err
		}
	}
	r.logger.Info("registry loaded", "path", r.path, "targets", len(r.targets))
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("targets: read %s: %w", r.path, err)
	}
	var stored registryData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("targets: parse %s: %w", r.path, err)
	}
	for _, t := range stored.Targets {
		r.targets[t.ID] = t
	}
	return nil
}

// save writes the registry to disk. Callers hold the write lock.
func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	stored := registryData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Targets:   r.sorted(),
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("targets: marshal: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("targets: write: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("targets: rename: %w", err)
	}
	return nil
}

func (r *Registry) sorted() []*Target {
	out := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Add registers a new target with optional reference embeddings.
func (r *Registry) Add(name, description string, embeddings ...[]float64) (*Target, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrNoName
	}
	t := NewTarget(name, description)
	for _, e := range embeddings {
		t.Embeddings = append(t.Embeddings, face.Normalize(e))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.ID] = t
	if err := r.save(); err != nil {
		delete(r.targets, t.ID)
		return nil, err
	}
	r.logger.Info("target added", "id", t.ID, "name", t.Name, "embeddings", len(t.Embeddings))
	return t.Clone(), nil
}

// Enroll extracts the most confident face from a JPEG photo and adds its
// embedding to the target.
func (r *Registry) Enroll(ctx context.Context, id string, photo []byte) (*Target, error) {
	if r.faces == nil {
		return nil, fmt.Errorf("targets: enrollment needs a face extractor")
	}
	faces, err := r.faces.DetectFaces(ctx, photo)
	if err != nil {
		return nil, fmt.Errorf("targets: enroll %s: %w", id, err)
	}
	best := -1
	for i, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		if best < 0 || f.Score > faces[best].Score {
			best = i
		}
	}
	if best < 0 {
		return nil, ErrNoFace
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t.Embeddings = append(t.Embeddings, faces[best].Embedding)
	if err := r.save(); err != nil {
		return nil, err
	}
	r.logger.Info("face enrolled", "id", id, "embeddings", len(t.Embeddings))
	return t.Clone(), nil
}

// Get returns a copy of the target with the given id.
func (r *Registry) Get(id string) (*Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.Clone(), nil
}

// FindByName returns the target whose name matches, ignoring case.
func (r *Registry) FindByName(name string) (*Target, error) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.sorted() {
		if strings.EqualFold(t.Name, name) {
			return t.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Lookup resolves an id first, then a name.
func (r *Registry) Lookup(idOrName string) (*Target, error) {
	if t, err := r.Get(idOrName); err == nil {
		return t, nil
	}
	return r.FindByName(idOrName)
}

// List returns copies of all targets, oldest first.
func (r *Registry) List() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sorted()
	out := make([]*Target, len(all))
	for i, t := range all {
		out[i] = t.Clone()
	}
	return out
}

// Count returns the number of registered targets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// MarkFound records a match. A confirmed target stays confirmed.
func (r *Registry) MarkFound(id string, confidence float64) error {
	return r.update(id, func(t *Target) {
		if t.Status != StatusConfirmed {
			t.Status = StatusFound
		}
		t.MatchConfidence = confidence
		now := time.Now()
		t.FoundAt = &now
	})
}

// MarkConfirmed records an operator confirmation.
func (r *Registry) MarkConfirmed(id string) error {
	return r.update(id, func(t *Target) {
		t.Status = StatusConfirmed
		if t.FoundAt == nil {
			now := time.Now()
			t.FoundAt = &now
		}
	})
}

// Reset puts a target back into the searching state.
func (r *Registry) Reset(id string) error {
	return r.update(id, func(t *Target) {
		t.Status = StatusSearching
		t.MatchConfidence = 0
		t.FoundAt = nil
	})
}

func (r *Registry) update(id string, fn func(*Target)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(t)
	r.logger.Info("target updated", "id", id, "status", t.Status, "confidence", t.MatchConfidence)
	return r.save()
}

// Delete removes a target.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.targets, id)
	return r.save()
}
