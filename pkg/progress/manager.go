// Package progress is the client-side progress manager. It follows a
// video's pipeline over the WebSocket push channel, reconnecting with
// bounded backoff, and degrades permanently to HTTP polling after too many
// failed reconnects. Both transports deliver the same snapshots, so
// consumers never see which one is active.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"clipforge/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

// State is the manager's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateDegraded means the push channel was given up on and snapshots
	// now come from polling.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "disconnected"
	}
}

// Config tunes the Manager.
type Config struct {
	// BaseURL is the server's HTTP base, e.g. "http://localhost:8080".
	BaseURL string
	// Token is the bearer token, also sent on the WebSocket handshake.
	Token string
	// VideoID is the resource to follow.
	VideoID string

	// MaxRetries bounds consecutive failed reconnects before degrading to
	// polling.
	MaxRetries int
	// InitialBackoff is the first reconnect delay; it doubles per attempt
	// up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// PollInterval is the snapshot poll rate in degraded mode.
	PollInterval time.Duration
	// ReadTimeout bounds silence on the socket; the server's keepalive
	// pings reset it.
	ReadTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxRetries <= 0 {
		out.MaxRetries = 5
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = time.Second
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 30 * time.Second
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 2 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 90 * time.Second
	}
	return out
}

// event mirrors the server's push message shape.
type event struct {
	Type     string                   `json:"type"`
	Snapshot *models.ProgressSnapshot `json:"snapshot"`
}

// Manager follows one video's progress until the pipeline finishes or the
// context is canceled.
type Manager struct {
	config    Config
	http      *resty.Client
	dialer    *websocket.Dialer
	snapshots chan models.ProgressSnapshot
	state     atomic.Int32
}

// NewManager creates a Manager. Run starts it.
func NewManager(config Config) *Manager {
	cfg := config.withDefaults()
	return &Manager{
		config: cfg,
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetAuthToken(cfg.Token).
			SetTimeout(15 * time.Second),
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		snapshots: make(chan models.ProgressSnapshot, 16),
	}
}

// Snapshots delivers progress updates in arrival order. The channel closes
// when Run returns.
func (m *Manager) Snapshots() <-chan models.ProgressSnapshot {
	return m.snapshots
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// Run follows the video until its pipeline reaches a terminal snapshot or
// ctx is canceled. Push is tried first; after MaxRetries consecutive failed
// connects the manager switches to polling and never goes back. A healthy
// connection that drops resets the budget.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.snapshots)
	defer m.setState(StateDisconnected)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt >= m.config.MaxRetries {
			m.setState(StateDegraded)
			return m.pollLoop(ctx)
		}
		if attempt > 0 {
			if err := sleepCtx(ctx, m.backoff(attempt)); err != nil {
				return err
			}
		}

		m.setState(StateConnecting)
		conn, err := m.dial(ctx)
		if err != nil {
			attempt++
			continue
		}

		m.setState(StateConnected)
		finished, received := m.follow(ctx, conn)
		conn.Close()
		if finished {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A connection that delivered an event was healthy; only failed
		// reconnects in a row count toward degradation.
		if received {
			attempt = 0
		}
		attempt++
	}
}

// backoff is exponential with a cap: initial * 2^(attempt-1).
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.config.MaxBackoff {
			return m.config.MaxBackoff
		}
	}
	if d > m.config.MaxBackoff {
		return m.config.MaxBackoff
	}
	return d
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL := httpToWS(m.config.BaseURL) + "/ws?token=" + m.config.Token
	conn, resp, err := m.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("websocket handshake rejected: unauthorized")
		}
		return nil, err
	}
	return conn, nil
}

// follow subscribes and consumes events until the pipeline finishes or the
// connection drops. finished is true only on a terminal snapshot; received
// reports whether at least one message arrived before the drop.
func (m *Manager) follow(ctx context.Context, conn *websocket.Conn) (finished, received bool) {
	// Server pings reset the read deadline; the default ping handler
	// already answers with a pong.
	conn.SetReadDeadline(time.Now().Add(m.config.ReadTimeout))
	pingHandler := conn.PingHandler()
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(m.config.ReadTimeout))
		return pingHandler(data)
	})

	sub := map[string]string{"type": "subscribe", "resource_id": m.config.VideoID}
	if err := conn.WriteJSON(sub); err != nil {
		return false, false
	}

	for {
		if ctx.Err() != nil {
			return false, received
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return false, received
		}
		received = true
		conn.SetReadDeadline(time.Now().Add(m.config.ReadTimeout))

		var evt event
		if err := json.Unmarshal(raw, &evt); err != nil {
			continue
		}
		if evt.Snapshot == nil {
			continue
		}
		if !m.emit(ctx, *evt.Snapshot) {
			return false, received
		}
		if evt.Snapshot.Finished {
			return true, received
		}
	}
}

// pollLoop is the degraded mode: fetch the snapshot on a fixed interval
// until the pipeline finishes.
func (m *Manager) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var snap models.ProgressSnapshot
		resp, err := m.http.R().
			SetContext(ctx).
			SetResult(&snap).
			Get("/api/videos/" + m.config.VideoID + "/progress")
		if err != nil {
			continue // transient; keep polling
		}
		if resp.IsError() {
			return fmt.Errorf("progress poll failed: %s", resp.Status())
		}
		if !m.emit(ctx, snap) {
			return ctx.Err()
		}
		if snap.Finished {
			return nil
		}
	}
}

func (m *Manager) emit(ctx context.Context, snap models.ProgressSnapshot) bool {
	select {
	case m.snapshots <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func httpToWS(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
