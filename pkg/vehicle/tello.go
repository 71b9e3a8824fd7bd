package vehicle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-grok-pilot/internal/log"
)

// Tello SDK 2.0 timing. Motion commands reply "ok" only once the vehicle
// has finished, so their deadline grows with the commanded amount.
const (
	telloBaseTimeout    = 7 * time.Second
	telloFlightTimeout  = 20 * time.Second
	telloPerCm          = 60 * time.Millisecond
	telloPerDegree      = 25 * time.Millisecond
	telloFlipTimeout    = 10 * time.Second
	telloReadBufferSize = 1024
)

var telloFlipCodes = map[Direction]string{
	Forward: "f",
	Back:    "b",
	Left:    "l",
	Right:   "r",
}

// TelloTransport speaks the Tello SDK text protocol over UDP.
type TelloTransport struct {
	addr   string
	logger *slog.Logger

	mu   sync.Mutex // one command at a time
	conn net.Conn
}

// NewTello creates a transport for the vehicle at addr (host:port).
// Connect must be called before any other method.
func NewTello(addr string, logger *slog.Logger) *TelloTransport {
	if logger == nil {
		logger = log.L()
	}
	return &TelloTransport{
		addr:   addr,
		logger: logger.With("component", "vehicle.tello", "addr", addr),
	}
}

// Connect opens the UDP socket and enters SDK mode.
func (t *TelloTransport) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", t.addr)
	if err != nil {
		return fmt.Errorf("tello: dial %s: %w", t.addr, err)
	}

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	t.mu.Unlock()

	if _, err := t.command(ctx, "command", telloBaseTimeout); err != nil {
		return err
	}
	// Video is consumed by the camera package.
	if _, err := t.command(ctx, "streamon", telloBaseTimeout); err != nil {
		t.logger.Warn("streamon failed", "error", err)
	}
	return nil
}

// Close closes the socket.
func (t *TelloTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Takeoff launches the vehicle.
func (t *TelloTransport) Takeoff(ctx context.Context) error {
	_, err := t.command(ctx, "takeoff", telloFlightTimeout)
	return err
}

// Land lands the vehicle.
func (t *TelloTransport) Land(ctx context.Context) error {
	_, err := t.command(ctx, "land", telloFlightTimeout)
	return err
}

// Move translates by cm in dir.
func (t *TelloTransport) Move(ctx context.Context, dir Direction, cm int) error {
	if _, err := ParseDirection(string(dir)); err != nil {
		return err
	}
	timeout := telloBaseTimeout + time.Duration(cm)*telloPerCm
	_, err := t.command(ctx, fmt.Sprintf("%s %d", dir, cm), timeout)
	return err
}

// Rotate turns clockwise for positive degrees, counter-clockwise otherwise.
func (t *TelloTransport) Rotate(ctx context.Context, degrees int) error {
	verb := "cw"
	if degrees < 0 {
		verb, degrees = "ccw", -degrees
	}
	timeout := telloBaseTimeout + time.Duration(degrees)*telloPerDegree
	_, err := t.command(ctx, fmt.Sprintf("%s %d", verb, degrees), timeout)
	return err
}

// Flip flips in dir.
func (t *TelloTransport) Flip(ctx context.Context, dir Direction) error {
	code, ok := telloFlipCodes[dir]
	if !ok {
		return fmt.Errorf("%w for flip: %q", ErrInvalidDirection, dir)
	}
	_, err := t.command(ctx, "flip "+code, telloFlipTimeout)
	return err
}

// Hover zeroes all stick inputs. The SDK does not acknowledge rc commands.
func (t *TelloTransport) Hover(ctx context.Context) error {
	return t.send("rc 0 0 0 0")
}

// Emergency stops the motors immediately.
func (t *TelloTransport) Emergency(ctx context.Context) error {
	return t.send("emergency")
}

// Battery reads the battery percentage.
func (t *TelloTransport) Battery(ctx context.Context) (int, error) {
	resp, err := t.command(ctx, "battery?", telloBaseTimeout)
	if err != nil {
		return 0, err
	}
	return parseTelloInt(resp)
}

// Height reads the altitude in cm.
func (t *TelloTransport) Height(ctx context.Context) (int, error) {
	resp, err := t.command(ctx, "height?", telloBaseTimeout)
	if err != nil {
		return 0, err
	}
	// SDK 2.0 reports decimeters, e.g. "12dm".
	if v, ok := strings.CutSuffix(resp, "dm"); ok {
		n, err := parseTelloInt(v)
		return n * 10, err
	}
	return parseTelloInt(resp)
}

func (t *TelloTransport) send(cmd string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	_, err := t.conn.Write([]byte(cmd))
	return err
}

// command sends cmd and waits for the reply. "error..." replies are
// returned as errors.
func (t *TelloTransport) command(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return "", ErrNotConnected
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		return "", err
	}

	// Unblock the read if ctx is cancelled first.
	stop := context.AfterFunc(ctx, func() {
		t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	t.logger.Debug("send", "cmd", cmd)
	if _, err := t.conn.Write([]byte(cmd)); err != nil {
		return "", fmt.Errorf("tello: write %q: %w", cmd, err)
	}

	buf := make([]byte, telloReadBufferSize)
	n, err := t.conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", fmt.Errorf("tello: %q timed out after %s", cmd, timeout)
		}
		return "", fmt.Errorf("tello: read %q: %w", cmd, err)
	}

	resp := strings.TrimSpace(string(buf[:n]))
	t.logger.Debug("recv", "cmd", cmd, "resp", resp)
	if strings.HasPrefix(strings.ToLower(resp), "error") {
		return resp, fmt.Errorf("tello: %q: %s", cmd, resp)
	}
	return resp, nil
}

func parseTelloInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("tello: unexpected reply %q", s)
	}
	return n, nil
}

var _ Transport = (*TelloTransport)(nil)
