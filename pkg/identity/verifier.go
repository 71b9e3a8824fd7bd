package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/teslashibe/go-grok-pilot/pkg/face"
	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
	"github.com/teslashibe/go-grok-pilot/pkg/targets"
	"github.com/teslashibe/go-grok-pilot/pkg/workers"
)

// ErrNoTarget is returned when Verify is called without a target.
var ErrNoTarget = errors.New("identity: no target")

// Notes attached to results that did not consult both judges.
const (
	NoteNoFaceData   = "No face data for target"
	NoteNoPerson     = "No person visible"
	NoteQuick        = "Quick verification (local only)"
	NoteNoOracle     = "Oracle not configured"
	NoteOracleFailed = "Oracle unavailable"
)

// Verifier matches frames against registered targets.
// It is safe for concurrent use.
type Verifier struct {
	faces  face.Extractor
	oracle oracle.Oracle
	pool   *workers.Pool
	owned  bool
	config *Config
	logger *slog.Logger
}

// New creates a verifier. pool runs the two judges; when nil the verifier
// creates its own two-slot pool. o may be nil, in which case only the
// local judge is consulted.
func New(faces face.Extractor, o oracle.Oracle, pool *workers.Pool, opts ...Option) *Verifier {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	v := &Verifier{
		faces:  faces,
		oracle: o,
		pool:   pool,
		config: cfg,
		logger: cfg.Logger.With("component", "identity.verifier"),
	}
	if v.pool == nil {
		v.pool = workers.New(workers.DefaultSize)
		v.owned = true
	}
	return v
}

// Close releases the verifier's own pool, if it created one.
func (v *Verifier) Close() {
	if v.owned {
		v.pool.Close()
	}
}

// Config returns a copy of the thresholds.
func (v *Verifier) Config() Config {
	return *v.config
}

// Verify runs the local and oracle judges concurrently on frame and fuses
// their verdicts. A judge that times out or fails contributes a
// non-matching zero-confidence verdict, so the result degrades to Low
// instead of erroring. The error is non-nil only when ctx itself ends.
func (v *Verifier) Verify(ctx context.Context, frame []byte, t *targets.Target) (*Result, error) {
	if t == nil {
		return nil, ErrNoTarget
	}
	if !t.HasFace() {
		v.logger.Warn("target has no face embeddings", "target", t.Name)
		return &Result{Level: Low, OracleDescription: NoteNoFaceData}, nil
	}

	refs := t.Embeddings
	localF := workers.Submit(v.pool, ctx, func(ctx context.Context) (LocalJudgment, error) {
		return v.judgeLocal(ctx, frame, refs), nil
	})

	var oracleF *workers.Future[OracleJudgment]
	if v.oracle != nil {
		desc := oracle.Descriptor{Name: t.Name, Description: t.Description}
		oracleF = workers.Submit(v.pool, ctx, func(ctx context.Context) (OracleJudgment, error) {
			return v.judgeOracle(ctx, frame, desc), nil
		})
	}

	local, err := localF.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		local = LocalJudgment{Distance: math.Inf(1), Note: err.Error()}
	}
	if oracleF == nil {
		return localOnly(v.config, local, NoteNoOracle, true), nil
	}

	remote, err := oracleF.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		remote = OracleJudgment{Description: NoteOracleFailed + ": " + err.Error()}
	}

	r := Fuse(v.config, local, remote)
	v.logger.Info("verification", "target", t.Name, "level", r.Level, "match", r.IsMatch,
		"confidence", r.Confidence, "local", local.Confidence, "oracle", remote.Confidence)
	return r, nil
}

// Quick runs the local judge only. It is meant for per-frame callers such
// as the tailing loop and never consults the oracle, so the best tier it
// can report is Medium.
func (v *Verifier) Quick(ctx context.Context, frame []byte, t *targets.Target) (*Result, error) {
	if t == nil {
		return nil, ErrNoTarget
	}
	if !t.HasFace() {
		return &Result{Level: Low, OracleDescription: NoteNoFaceData}, nil
	}
	local := v.judgeLocal(ctx, frame, t.Embeddings)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return localOnly(v.config, local, NoteQuick, false), nil
}

// judgeLocal compares every detected face against every reference
// embedding and keeps the closest pair.
func (v *Verifier) judgeLocal(ctx context.Context, frame []byte, refs [][]float64) LocalJudgment {
	j := LocalJudgment{Distance: math.Inf(1)}
	if v.faces == nil {
		j.Note = "face extractor not configured"
		return j
	}
	if v.config.LocalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.config.LocalTimeout)
		defer cancel()
	}

	faces, err := v.faces.DetectFaces(ctx, frame)
	if err != nil {
		v.logger.Warn("local judge failed", "error", err)
		j.Note = err.Error()
		return j
	}

	for _, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		d := face.MinDistance(v.faces.Distance, f.Embedding, refs)
		if d < j.Distance {
			j.Distance = d
			box := f.BBox
			j.BBox = &box
		}
	}
	if math.IsInf(j.Distance, 1) {
		j.Note = "no face detected"
		return j
	}

	thr := v.config.MatchDistance
	if j.Distance < thr {
		j.Matched = true
		j.Confidence = clamp01(1 - j.Distance/thr)
	} else {
		j.Confidence = clamp01(1 - j.Distance)
	}
	v.logger.Debug("local judge", "distance", j.Distance, "matched", j.Matched, "confidence", j.Confidence)
	return j
}

func (v *Verifier) judgeOracle(ctx context.Context, frame []byte, desc oracle.Descriptor) OracleJudgment {
	if v.config.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.config.OracleTimeout)
		defer cancel()
	}

	ans, err := v.oracle.VerifyIdentity(ctx, frame, desc)
	if err != nil {
		var pe *oracle.ParseError
		if errors.As(err, &pe) {
			v.logger.Warn("oracle identity answer unparseable", "error", pe.Err)
			return OracleJudgment{Description: "unparseable oracle answer", Raw: pe.Raw}
		}
		v.logger.Warn("oracle judge failed", "error", err)
		return OracleJudgment{Description: fmt.Sprintf("%s: %v", NoteOracleFailed, err)}
	}

	if !ans.PersonVisible {
		return OracleJudgment{Description: NoteNoPerson}
	}
	return OracleJudgment{
		Matched:     ans.IsTarget && ans.Confidence >= v.config.OracleMinConfidence,
		Confidence:  clamp01(ans.Confidence),
		Description: ans.Summary(),
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

