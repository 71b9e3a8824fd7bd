package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("camera: stream closed")

// Stream decodes the vehicle video feed and publishes JPEG frames to its
// Buffer.
type Stream struct {
	*Buffer

	config  Config
	capture *gocv.VideoCapture
	logger  *slog.Logger

	mu      sync.Mutex
	closed  bool
	running bool
}

// Open connects to the video source.
func Open(cfg Config) (*Stream, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %s", strings.Join(errs, "; "))
	}
	capture, err := gocv.OpenVideoCapture(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("camera: open %s: %w", cfg.URL, err)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}
	return &Stream{
		Buffer:  NewBuffer(cfg.MaxAge),
		config:  cfg,
		capture: capture,
		logger:  logger.With("component", "camera.stream"),
	}, nil
}

// Run reads frames until ctx ends or the stream is closed.
func (s *Stream) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.running {
		s.mu.Unlock()
		return ErrClosed
	}
	s.running = true
	s.mu.Unlock()
	defer s.capture.Close()

	img := gocv.NewMat()
	defer img.Close()

	params := []int{int(gocv.IMWriteJpegQuality), s.config.Quality}
	interval := s.config.interval()
	var last time.Time
	misses := 0

	s.logger.Info("video stream started", "url", s.config.URL, "width", s.config.Width, "height", s.config.Height)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.isClosed() {
			return ErrClosed
		}

		if ok := s.capture.Read(&img); !ok || img.Empty() {
			misses++
			if misses%100 == 1 {
				s.logger.Warn("no frame from stream", "misses", misses)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		if time.Since(last) < interval {
			continue
		}
		last = time.Now()

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, params)
		if err != nil {
			s.logger.Warn("jpeg encode failed", "error", err)
			continue
		}
		frame := append([]byte(nil), buf.GetBytes()...)
		buf.Close()
		s.Publish(frame)
	}
}

// Close stops Run, which releases the capture device on its way out.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.running {
		return s.capture.Close()
	}
	return nil
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
