// Shopwire - Real-Time Messaging Core for Manufacturing Operations
// Copyright 2026 Shopwire Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/shopwire/shopwire

package client

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopwire/shopwire/internal/logging"
	"github.com/shopwire/shopwire/internal/metrics"
)

const (
	dialTimeout    = 10 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024 // 512 KB
)

// connManager owns the transport connection for one channel: lifecycle,
// reconnect policy, and nothing else. It never touches the delivery store
// or outbound queue; it only reports onOpen / onFrame / onStateChange /
// onUnavailable into the owning event loop.
//
// All methods run on the channel event loop. Blocking work (dialing,
// reading) happens on helper goroutines that post results back through
// post; results are tagged with an epoch so events from a superseded
// connection are discarded.
type connManager struct {
	channelID string
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	policy    backoffPolicy
	retryCap  int

	// post schedules a closure onto the channel event loop. The result
	// (false once the loop has shut down) is irrelevant here: a closure
	// dropped at shutdown belongs to a connection that no longer exists.
	post func(func()) bool

	state               ConnState
	retryCount          int
	nextRetryAt         time.Time
	epoch               uint64
	conn                *websocket.Conn
	retryTimer          *time.Timer
	unavailableSignaled bool

	onOpen        func()
	onFrame       func([]byte)
	onStateChange func(ConnState)
	onUnavailable func()
}

func newConnManager(channelID, url string, header http.Header, policy backoffPolicy, retryCap int, post func(func()) bool) *connManager {
	return &connManager{
		channelID: channelID,
		url:       url,
		header:    header,
		dialer:    &websocket.Dialer{HandshakeTimeout: dialTimeout},
		policy:    policy,
		retryCap:  retryCap,
		post:      post,
		state:     StateIdle,
	}
}

// connect starts the transport if it is not already open or connecting.
// Idempotent: a second connect while open or connecting is a no-op.
func (c *connManager) connect() {
	switch c.state {
	case StateOpen, StateConnecting:
		return
	case StateBackoff:
		// A reconnect is already scheduled; connect does not jump the queue.
		return
	case StateClosed:
		// A closed channel stays closed; callers create a new one.
		return
	}
	c.setState(StateConnecting)
	c.dial()
}

// disconnect releases the transport and cancels any pending retry.
// Idempotent and side-effect-free when already closed.
func (c *connManager) disconnect() {
	if c.state == StateClosed {
		return
	}
	c.cancelRetry()
	c.epoch++ // orphan any in-flight dial or read pump
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setState(StateClosed)
}

// transmit writes one frame. Only the event loop calls this, so writes
// never race. A write failure routes through the backoff path.
func (c *connManager) transmit(data []byte) error {
	if c.state != StateOpen || c.conn == nil {
		return ErrChannelClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.transportDown(err)
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.transportDown(err)
		return err
	}
	return nil
}

// dial opens the transport on a helper goroutine and posts the result
// back, tagged with the current epoch.
func (c *connManager) dial() {
	epoch := c.epoch
	url, header := c.url, c.header
	metrics.ClientReconnectAttempts.WithLabelValues(c.channelID).Inc()
	go func() {
		conn, resp, err := c.dialer.Dial(url, header) //nolint:bodyclose // gorilla owns resp.Body on success
		if resp != nil && resp.Body != nil && err != nil {
			_ = resp.Body.Close()
		}
		c.post(func() { c.handleDialResult(epoch, conn, err) })
	}()
}

func (c *connManager) handleDialResult(epoch uint64, conn *websocket.Conn, err error) {
	if epoch != c.epoch || c.state == StateClosed {
		// Superseded by a disconnect; release the socket if one was opened.
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		logging.Warn().Err(err).Str("channel", c.channelID).Int("retry", c.retryCount).Msg("dial failed")
		c.scheduleRetry()
		return
	}

	conn.SetReadLimit(maxMessageSize)
	c.conn = conn
	c.retryCount = 0
	c.unavailableSignaled = false
	c.setState(StateOpen)
	logging.Info().Str("channel", c.channelID).Msg("channel transport open")

	c.readPump(conn, c.epoch)
	if c.onOpen != nil {
		c.onOpen()
	}
}

// readPump reads frames on a helper goroutine and posts them into the
// loop in arrival order. A read error from the current epoch routes the
// connection into backoff.
func (c *connManager) readPump(conn *websocket.Conn, epoch uint64) {
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.post(func() { c.handleReadError(epoch, err) })
				return
			}
			c.post(func() { c.handleFrame(epoch, data) })
		}
	}()
}

func (c *connManager) handleFrame(epoch uint64, data []byte) {
	if epoch != c.epoch || c.state != StateOpen {
		return
	}
	if c.onFrame != nil {
		c.onFrame(data)
	}
}

func (c *connManager) handleReadError(epoch uint64, err error) {
	if epoch != c.epoch || c.state != StateOpen {
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		logging.Warn().Err(err).Str("channel", c.channelID).Msg("transport read failed")
	}
	c.transportDown(err)
}

// transportDown moves an open connection into backoff. Transport errors
// are never fatal; they always route through the retry path.
func (c *connManager) transportDown(err error) {
	if c.state != StateOpen {
		return
	}
	c.epoch++ // orphan the read pump
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	logging.Info().Err(err).Str("channel", c.channelID).Msg("channel transport down, entering backoff")
	c.scheduleRetry()
}

// scheduleRetry arms a single reconnect timer using exponential backoff
// with jitter. Beyond the retry cap the interval stops growing and a
// single unavailable signal is surfaced; retries continue for as long as
// the channel exists.
func (c *connManager) scheduleRetry() {
	c.setState(StateBackoff)
	c.retryCount++

	effective := c.retryCount
	if effective > c.retryCap {
		effective = c.retryCap
	}
	delay := c.policy.delay(effective)
	c.nextRetryAt = time.Now().Add(delay)

	if c.retryCount >= c.retryCap && !c.unavailableSignaled {
		c.unavailableSignaled = true
		logging.Warn().Str("channel", c.channelID).Int("retries", c.retryCount).Msg("retry cap reached, channel unavailable")
		if c.onUnavailable != nil {
			c.onUnavailable()
		}
	}

	c.cancelRetry()
	epoch := c.epoch
	c.retryTimer = time.AfterFunc(delay, func() {
		c.post(func() {
			if epoch != c.epoch || c.state != StateBackoff {
				return
			}
			c.setState(StateConnecting)
			c.dial()
		})
	})
}

// cancelRetry stops the pending retry timer, if any. Each new timer
// cancels the prior one, so at most one retry is ever in flight.
func (c *connManager) cancelRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *connManager) setState(s ConnState) {
	if c.state == s {
		return
	}
	c.state = s
	metrics.ClientConnectionState.WithLabelValues(c.channelID).Set(metrics.ConnectionStateValue(s.String()))
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}
