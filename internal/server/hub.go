// Package server coordinates session registration, alias bookkeeping and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Tyrowin/gorelay/internal/checksum"
	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/metrics"
	"github.com/Tyrowin/gorelay/internal/packet"
	"github.com/Tyrowin/gorelay/internal/registry"
	"github.com/Tyrowin/gorelay/internal/transport"
)

// Hub is the server context shared by every session. It owns the alias
// registry, the configuration and the connection cap, and tracks live
// sessions so Shutdown can close them.
type Hub struct {
	cfg      config.Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	registry *registry.Registry[*Client]
	guard    *checksum.Guard
	origins  *OriginPolicy
	slots    *semaphore.Weighted

	mutex   sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHub creates a Hub ready to accept sessions. A nil metrics value gets a
// fresh private registry.
func NewHub(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) *Hub {
	cfg = config.Sanitize(cfg)
	if m == nil {
		m = metrics.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:      cfg,
		log:      logger.With().Str("component", "hub").Logger(),
		metrics:  m,
		registry: registry.New[*Client](),
		guard:    checksum.NewGuard(cfg.RequireChecksum),
		origins:  NewOriginPolicy(cfg.AllowedOrigins, logger),
		slots:    semaphore.NewWeighted(int64(cfg.MaxConnections)),
		clients:  make(map[*Client]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (h *Hub) Config() config.Config     { return h.cfg }
func (h *Hub) Metrics() *metrics.Metrics { return h.metrics }
func (h *Hub) Origins() *OriginPolicy    { return h.origins }
func (h *Hub) Done() <-chan struct{}     { return h.ctx.Done() }
func (h *Hub) Aliases() []string         { return h.registry.Aliases("") }
func (h *Hub) Registered(alias string) bool {
	_, err := h.registry.Lookup(alias)
	return err == nil
}

// Attach starts a session on ch. When the server is full the peer gets a
// notice and ch is closed.
func (h *Hub) Attach(ch transport.Channel) (*Client, error) {
	if h.ctx.Err() != nil {
		_ = ch.Close()
		return nil, ErrHubStopped
	}
	if !h.slots.TryAcquire(1) {
		h.metrics.RejectedConnection()
		h.log.Warn().Str("remote", ch.RemoteAddr()).Int("max", h.cfg.MaxConnections).Msg("connection refused, server full")
		h.refuse(ch, noticeServerFull)
		return nil, fmt.Errorf("%w (%d)", ErrServerFull, h.cfg.MaxConnections)
	}

	client := newClient(h, ch, uuid.NewString())

	h.mutex.Lock()
	if h.ctx.Err() != nil {
		h.mutex.Unlock()
		h.slots.Release(1)
		_ = ch.Close()
		return nil, ErrHubStopped
	}
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.wg.Add(2)
	h.mutex.Unlock()

	h.metrics.SessionOpened()
	client.log.Info().Int("sessions", clientCount).Msg("session opened")

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
	return client, nil
}

// refuse writes a single notice to ch without starting a session.
func (h *Hub) refuse(ch transport.Channel, text string) {
	p := packet.Server(packet.Unregistered, text)
	h.guard.Stamp(&p)
	_ = ch.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	if err := ch.Send(packet.Encode(p)); err != nil && !isExpectedCloseError(err) {
		h.log.Debug().Err(err).Str("remote", ch.RemoteAddr()).Msg("refusal notice not delivered")
	}
	_ = ch.Close()
}

// forget drops a finished session and frees its connection slot.
func (h *Hub) forget(c *Client) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	clientCount := len(h.clients)
	h.mutex.Unlock()
	if !ok {
		return
	}
	h.slots.Release(1)
	h.metrics.SessionClosed()
	h.metrics.SetAliases(h.registry.Len())
	c.log.Info().Int("sessions", clientCount).Msg("session closed")
}

func (h *Hub) snapshotClients() []*Client {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// Shutdown closes every session and waits for their goroutines, up to
// timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.mutex.Lock()
	h.cancel()
	h.mutex.Unlock()

	clients := h.snapshotClients()
	for _, client := range clients {
		client.notify(noticeShutdown)
		client.Close()
	}
	h.log.Info().Int("sessions", len(clients)).Msg("closed client sessions")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
