package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-grok-pilot/pkg/inference"
)

// Client implements Oracle over an inference provider.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	provider inference.Provider
	config   *Config
	logger   *slog.Logger
}

// NewClient creates an oracle client.
func NewClient(provider inference.Provider, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Client{
		provider: provider,
		config:   cfg,
		logger:   cfg.Logger.With("component", "oracle.client"),
	}, nil
}

// CheckClearance asks the oracle how much room there is around the vehicle.
func (c *Client) CheckClearance(ctx context.Context, frame []byte, m Maneuver, requiredCm int) (*ClearanceReport, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	c.logger.Info("checking clearance", "maneuver", m, "required_cm", requiredCm)

	content, err := c.ask(ctx, c.config.Timeout, &inference.VisionRequest{
		System: clearanceSystemPrompt(m, requiredCm),
		Prompt: clearanceUserPrompt(m, requiredCm),
		Images: [][]byte{frame},
	})
	if err != nil {
		return nil, err
	}

	var report ClearanceReport
	if err := Decode(content, &report); err != nil {
		c.logger.Warn("clearance response unparseable", "error", err)
		return nil, err
	}

	if report.IsClear {
		c.logger.Info("clearance ok", "score", report.SafetyScore, "front_cm", report.FrontCm)
	} else {
		c.logger.Warn("clearance blocked", "score", report.SafetyScore, "front_cm", report.FrontCm, "warnings", report.Warnings)
	}
	return &report, nil
}

// VerifyIdentity asks the oracle whether the target is visible.
func (c *Client) VerifyIdentity(ctx context.Context, frame []byte, target Descriptor) (*IdentityJudgment, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	content, err := c.ask(ctx, c.config.Timeout, &inference.VisionRequest{
		Prompt: identityPrompt(target),
		Images: [][]byte{frame},
	})
	if err != nil {
		return nil, err
	}

	var j IdentityJudgment
	if err := Decode(content, &j); err != nil {
		c.logger.Warn("identity response unparseable", "error", err)
		return nil, err
	}
	c.logger.Debug("identity judgment", "target", target.Name, "visible", j.PersonVisible,
		"is_target", j.IsTarget, "confidence", j.Confidence)
	return &j, nil
}

// AnalyzePanorama sends all eight sweep frames in one request.
func (c *Client) AnalyzePanorama(ctx context.Context, frames [][]byte) (*PanoramaAnalysis, error) {
	if len(frames) != PanoramaFrames {
		return nil, fmt.Errorf("%w: got %d", ErrFrameCount, len(frames))
	}
	for i, f := range frames {
		if len(f) == 0 {
			return nil, fmt.Errorf("frame %d: %w", i+1, ErrEmptyFrame)
		}
	}
	c.logger.Info("analyzing panorama", "frames", len(frames))

	content, err := c.ask(ctx, c.config.PanoramaTimeout, &inference.VisionRequest{
		System: panoramaSystemPrompt,
		Prompt: panoramaUserPrompt(),
		Images: frames,
	})
	if err != nil {
		return nil, err
	}

	var a PanoramaAnalysis
	if err := Decode(content, &a); err != nil {
		c.logger.Warn("panorama response unparseable", "error", err)
		return nil, err
	}
	c.logger.Info("panorama analyzed", "people", len(a.People), "objects", len(a.Objects))
	return &a, nil
}

func (c *Client) ask(ctx context.Context, timeout time.Duration, req *inference.VisionRequest) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req.JSON = true
	req.MaxTokens = c.config.MaxTokens

	resp, err := c.provider.Vision(ctx, req)
	if err != nil {
		return "", fmt.Errorf("oracle: %w", err)
	}
	return resp.Content, nil
}

var _ Oracle = (*Client)(nil)
