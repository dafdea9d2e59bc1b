package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/arakoodev/cliscale/pkg/events"
	"github.com/arakoodev/cliscale/pkg/metrics"
)

// errBackpressureStall is relay's sentinel for "the peer stopped
// accepting writes", distinct from a read error or a received close
// frame. It must close both halves with 1011 regardless of which
// direction stalled.
var errBackpressureStall = errors.New("gateway: backpressure stall")

// proxyConfig bounds the Proxying state's keepalive, idle, and
// backpressure discipline.
type proxyConfig struct {
	PingInterval        time.Duration
	PongTimeout         time.Duration
	IdleTimeout         time.Duration
	BackpressureTimeout time.Duration
}

type relayResult struct {
	direction string
	err       error
}

// runProxy relays bytes between the browser client and the worker's
// terminal server until either side closes, a ping goes unanswered, the
// connection sits idle past IdleTimeout, or a write stalls past
// BackpressureTimeout. A backpressure stall closes both halves with
// 1011 regardless of which direction stalled. Otherwise the worker's
// close code propagates to the client; the client's close always
// yields a plain 1000 to the worker.
func runProxy(ctx context.Context, sessionID string, clientConn, workerConn *websocket.Conn, cfg proxyConfig, log zerolog.Logger, broker *events.Broker) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.ProxyConnectionsActive.Inc()
	defer metrics.ProxyConnectionsActive.Dec()

	activity := make(chan struct{}, 2)
	results := make(chan relayResult, 2)

	go func() {
		results <- relayResult{"down", relay(ctx, workerConn, clientConn, "down", cfg.BackpressureTimeout, activity)}
	}()
	go func() {
		results <- relayResult{"up", relay(ctx, clientConn, workerConn, "up", cfg.BackpressureTimeout, activity)}
	}()

	idle := time.NewTimer(cfg.IdleTimeout)
	defer idle.Stop()
	pingTicker := time.NewTicker(cfg.PingInterval)
	defer pingTicker.Stop()

	reason := "closed"
	clientCode, workerCode := websocket.StatusNormalClosure, websocket.StatusNormalClosure

loop:
	for {
		select {
		case res := <-results:
			switch {
			case errors.Is(res.err, errBackpressureStall):
				reason = "backpressure_stall"
				clientCode, workerCode = websocket.StatusInternalError, websocket.StatusInternalError
			case res.direction == "down":
				reason = "worker_closed"
				clientCode = propagateCode(res.err)
				workerCode = websocket.StatusNormalClosure
			case res.direction == "up":
				reason = "client_closed"
				clientCode = websocket.StatusNormalClosure
				workerCode = websocket.StatusNormalClosure
			}
			break loop
		case <-idle.C:
			reason = "idle_timeout"
			clientCode, workerCode = websocket.StatusGoingAway, websocket.StatusGoingAway
			break loop
		case <-activity:
			idle.Reset(cfg.IdleTimeout)
		case <-pingTicker.C:
			if !pingBoth(ctx, clientConn, workerConn, cfg.PongTimeout) {
				reason = "ping_timeout"
				clientCode, workerCode = websocket.StatusInternalError, websocket.StatusInternalError
				break loop
			}
		case <-ctx.Done():
			break loop
		}
	}

	_ = clientConn.Close(clientCode, reason)
	_ = workerConn.Close(workerCode, reason)
	cancel()

	// the relay goroutine that didn't trigger the break above still owes
	// a send on results once its Read/Write unblocks from the close.
	go func() { <-results }()

	metrics.ProxyClosedTotal.WithLabelValues(reason).Inc()
	if broker != nil {
		broker.Publish(&events.Event{Type: events.EventProxyClosed, Message: sessionID})
	}
	log.Info().Str("session_id", sessionID).Str("reason", reason).Msg("proxy closed")
}

// relay pumps messages from src to dst, applying writeTimeout as the
// backpressure stall bound on each forwarded write.
func relay(ctx context.Context, src, dst *websocket.Conn, direction string, writeTimeout time.Duration, activity chan<- struct{}) error {
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			return err
		}

		select {
		case activity <- struct{}{}:
		default:
		}
		metrics.ProxyBytesTotal.WithLabelValues(direction).Add(float64(len(data)))

		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = dst.Write(writeCtx, typ, data)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return errBackpressureStall
			}
			return err
		}
	}
}

func pingBoth(ctx context.Context, a, b *websocket.Conn, timeout time.Duration) bool {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	errA := a.Ping(pingCtx)
	errB := b.Ping(pingCtx)
	return errA == nil && errB == nil
}

// propagateCode extracts the close code a peer sent, or StatusInternalError
// if the read failed for a reason other than a received close frame (EOF,
// network error, backpressure write timeout).
func propagateCode(err error) websocket.StatusCode {
	code := websocket.CloseStatus(err)
	if code == -1 {
		return websocket.StatusInternalError
	}
	return code
}
