// Package server manages individual relay sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/gorelay/internal/checksum"
	"github.com/Tyrowin/gorelay/internal/cipher"
	"github.com/Tyrowin/gorelay/internal/packet"
	"github.com/Tyrowin/gorelay/internal/transport"
)

type sessionState int

const (
	stateUnregistered sessionState = iota
	stateRegistered
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateUnregistered:
		return "unregistered"
	case stateRegistered:
		return "registered"
	default:
		return "closed"
	}
}

// Client is one connection's session. Its read pump feeds the dispatch
// engine; its write pump is the only writer on the channel, so frames sent
// to it from many sessions never interleave.
type Client struct {
	id   string
	ch   transport.Channel
	hub  *Hub
	addr string
	log  zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	limiter  *rate.Limiter
	resends  *checksum.Tracker
	regTimer *time.Timer

	mu       sync.Mutex
	alias    string
	state    sessionState
	encoding string
	departed bool
}

func newClient(h *Hub, ch transport.Channel, id string) *Client {
	cfg := h.cfg
	perSecond := float64(cfg.RateLimit.Burst) / cfg.RateLimit.RefillInterval.Seconds()

	c := &Client{
		id:       id,
		ch:       ch,
		hub:      h,
		addr:     ch.RemoteAddr(),
		send:     make(chan []byte, cfg.OutboundQueue),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Limit(perSecond), cfg.RateLimit.Burst),
		resends:  checksum.NewTracker(cfg.MaxResends),
		alias:    packet.Unregistered,
		state:    stateUnregistered,
		encoding: packet.DefaultCipher,
	}
	c.log = h.log.With().
		Str("component", "session").
		Str("session", id).
		Str("remote", c.addr).
		Logger()
	c.regTimer = time.AfterFunc(cfg.RegistrationTimeout, c.registrationExpired)
	return c
}

// Alias returns the session's current identity, the sentinel while
// unregistered.
func (c *Client) Alias() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alias
}

func (c *Client) ID() string { return c.id }

func (c *Client) identity() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alias, c.state == stateRegistered
}

func (c *Client) promote(alias string) {
	c.mu.Lock()
	c.alias = alias
	c.state = stateRegistered
	c.mu.Unlock()
	c.regTimer.Stop()
}

func (c *Client) rename(alias string) {
	c.mu.Lock()
	c.alias = alias
	c.mu.Unlock()
}

func (c *Client) setEncoding(name string) {
	c.mu.Lock()
	c.encoding = cipher.LookupOrClear(name).Name()
	c.mu.Unlock()
}

func (c *Client) replyCipher() cipher.Cipher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cipher.LookupOrClear(c.encoding)
}

// markDeparted records that the departure notice went out and reports
// whether this call did it.
func (c *Client) markDeparted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.departed {
		return false
	}
	c.departed = true
	return true
}

// enqueue hands a frame to the write pump without blocking.
func (c *Client) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrSessionClosed
	default:
		return ErrQueueFull
	}
}

// notify sends a server notice to this session, encoded with the cipher the
// peer last declared.
func (c *Client) notify(text string) {
	c.notifyAs(c.Alias(), text)
}

func (c *Client) notifyAs(dest, text string) {
	ciph := c.replyCipher()
	p := packet.Server(dest, ciph.Encode(text))
	p.Encoding = ciph.Name()
	c.hub.guard.Stamp(&p)
	c.hub.deliver(c, packet.Encode(p))
}

// Close ends the session. The write pump flushes what is already queued and
// closes the channel, which unblocks the read pump.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) registrationExpired() {
	if _, registered := c.identity(); registered {
		return
	}
	c.log.Info().Dur("timeout", c.hub.cfg.RegistrationTimeout).Msg("registration timed out")
	c.notify(noticeRegTimeout)
	c.Close()
}

// handleReadError logs the error at a level matching how routine it is.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, packet.ErrMalformedFrame):
		c.log.Warn().Err(err).Msg("malformed frame, closing session")
	case isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("read error, closing session")
	}
}

// checkRateLimit reports whether the next packet may be processed.
func (c *Client) checkRateLimit() bool {
	if c.limiter.Allow() {
		return true
	}
	c.log.Warn().
		Int("burst", c.hub.cfg.RateLimit.Burst).
		Dur("interval", c.hub.cfg.RateLimit.RefillInterval).
		Msg("rate limit exceeded, discarding packet")
	return false
}

func (c *Client) readPump() {
	defer c.teardown()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("recovered from panic in session")
		}
	}()

	idle := c.hub.cfg.IdleTimeout
	for {
		// a hijacked HTTP connection may still carry the server's read deadline
		var deadline time.Time
		if idle > 0 {
			deadline = time.Now().Add(idle)
		}
		_ = c.ch.SetReadDeadline(deadline)
		block, err := c.ch.Receive()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if packet.IsResend(block) {
			c.log.Debug().Msg("ignoring RESEND from client")
			continue
		}
		p, err := packet.Decode(block)
		if err != nil {
			c.handleReadError(err)
			return
		}
		if !c.checkRateLimit() {
			continue
		}
		if err := c.hub.dispatch(c, p, packet.Canonical(block)); err != nil {
			switch {
			case errors.Is(err, errSessionEnded):
				c.log.Debug().Msg("session ended by bye")
			case errors.Is(err, checksum.ErrExhausted):
				c.log.Warn().Err(err).Msg("closing session")
			default:
				c.log.Warn().Err(err).Msg("dispatch failed, closing session")
			}
			return
		}
	}
}

// teardown always runs when the read loop ends: the alias is released, the
// others are told, and the channel is closed.
func (c *Client) teardown() {
	c.regTimer.Stop()

	c.mu.Lock()
	alias, registered := c.alias, c.state == stateRegistered
	c.state = stateClosed
	c.mu.Unlock()

	if registered && c.hub.registry.RemoveIf(alias, c) && c.markDeparted() {
		c.hub.announce(c, fmt.Sprintf(noticeLeft, alias))
	}
	c.Close()
	c.hub.forget(c)
}

func (c *Client) writePump() {
	defer c.closeConnection()

	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is already queued when the session closes so that
// final notices reach the peer.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			if !c.write(frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(frame []byte) bool {
	if err := c.ch.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout)); err != nil {
		c.log.Debug().Err(err).Msg("error setting write deadline")
	}
	if err := c.ch.Send(frame); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing frame")
		}
		return false
	}
	return true
}

// closeConnection safely closes the channel with proper error handling
func (c *Client) closeConnection() {
	if err := c.ch.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn().Err(err).Msg("error closing connection")
	}
}
