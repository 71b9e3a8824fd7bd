// Package targets keeps the registry of people the vehicle is asked to
// find and follow, with their reference face embeddings.
package targets

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status tracks how far a target has progressed through a search.
type Status string

// Target statuses.
const (
	StatusSearching Status = "searching"
	StatusFound     Status = "found"
	StatusConfirmed Status = "confirmed"
)

var (
	// ErrNotFound is returned when no target matches an id or name.
	ErrNotFound = errors.New("targets: not found")

	// ErrNoName is returned when adding a target without a name.
	ErrNoName = errors.New("targets: name is required")

	// ErrNoFace is returned when an enrollment photo has no detectable face.
	ErrNoFace = errors.New("targets: no face in photo")
)

// Target is a person to search for.
type Target struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Embeddings      [][]float64 `json:"face_embeddings"`
	Status          Status      `json:"status"`
	MatchConfidence float64     `json:"match_confidence"`
	CreatedAt       time.Time   `json:"created_at"`
	FoundAt         *time.Time  `json:"found_at,omitempty"`
}

// NewTarget creates a target in the searching state with a fresh id.
func NewTarget(name, description string) *Target {
	return &Target{
		ID:          newID(),
		Name:        strings.TrimSpace(name),
		Description: description,
		Status:      StatusSearching,
		CreatedAt:   time.Now(),
	}
}

func newID() string {
	return "target_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// HasFace reports whether the target has at least one reference embedding.
func (t *Target) HasFace() bool {
	return len(t.Embeddings) > 0
}

// Clone returns a deep copy safe to hand to another goroutine.
func (t *Target) Clone() *Target {
	c := *t
	c.Embeddings = make([][]float64, len(t.Embeddings))
	for i, e := range t.Embeddings {
		c.Embeddings[i] = slices.Clone(e)
	}
	if t.FoundAt != nil {
		at := *t.FoundAt
		c.FoundAt = &at
	}
	return &c
}
