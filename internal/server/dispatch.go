package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Tyrowin/gorelay/internal/cipher"
	"github.com/Tyrowin/gorelay/internal/packet"
	"github.com/Tyrowin/gorelay/internal/registry"
)

// dispatch applies one decoded packet from c. raw is the frame as received
// and is what gets forwarded for one and all. A non-nil error ends the
// session.
func (h *Hub) dispatch(c *Client, p packet.Packet, raw []byte) error {
	if err := h.guard.Check(p); err != nil {
		return h.rejectChecksum(c, err)
	}
	c.resends.Reset()
	c.setEncoding(p.Encoding)

	verb := string(p.Verb)
	if !p.Verb.Known() {
		verb = "unknown"
	}
	h.metrics.Packet(verb)

	if err := p.Validate(); err != nil {
		c.log.Debug().Err(err).Str("packet", p.String()).Msg("rejecting invalid packet")
		c.notify(fmt.Sprintf(noticeInvalidPacket, err))
		return nil
	}

	alias, registered := c.identity()
	if !registered {
		switch p.Verb {
		case packet.VerbRegister:
			h.register(c, p)
			return nil
		case packet.VerbBye:
			return errSessionEnded
		default:
			c.log.Debug().Str("verb", string(p.Verb)).Err(ErrNotRegistered).Msg("rejecting packet")
			c.notify(noticeRegisterFirst)
			return nil
		}
	}

	if p.Source != alias {
		c.log.Warn().Str("source", p.Source).Err(ErrSourceSpoofed).Msg("rejecting packet")
		c.notify(fmt.Sprintf(noticeSourceMismatch, p.Source, alias))
		return nil
	}

	switch p.Verb {
	case packet.VerbRegister:
		h.renameAlias(c, alias, p)
	case packet.VerbOne:
		h.unicast(c, p, raw)
	case packet.VerbAll:
		h.broadcast(c, raw)
	case packet.VerbWho:
		h.who(c, alias)
	case packet.VerbBye:
		h.bye(c, alias)
		return errSessionEnded
	default:
		c.log.Debug().Str("verb", string(p.Verb)).Msg("ignoring unrecognised verb")
	}
	return nil
}

// rejectChecksum answers a corrupted packet with RESEND, or ends the session
// once the peer has used up its retransmissions.
func (h *Hub) rejectChecksum(c *Client, cause error) error {
	h.metrics.ChecksumMismatch()
	attempts, err := c.resends.Fail()
	if err != nil {
		h.metrics.ResendsExhausted()
		c.notify(noticeTooManyResends)
		return err
	}
	c.log.Debug().Err(cause).Int("attempt", attempts).Msg("requesting resend")
	h.deliver(c, packet.ResendBlock())
	return nil
}

// requestedAlias extracts the alias carried in a reg packet's message.
func requestedAlias(p packet.Packet) string {
	return strings.TrimSpace(cipher.LookupOrClear(p.Encoding).Decode(p.Message))
}

func (h *Hub) register(c *Client, p packet.Packet) {
	alias := requestedAlias(p)
	if err := packet.ValidAlias(alias); err != nil {
		c.log.Debug().Err(err).Msg("registration rejected")
		c.notifyAs(packet.Unregistered, fmt.Sprintf(noticeAliasInvalid, alias))
		return
	}
	if err := h.registry.Register(alias, c); err != nil {
		c.log.Debug().Err(err).Msg("registration rejected")
		c.notifyAs(packet.Unregistered, fmt.Sprintf(noticeAliasTaken, alias))
		return
	}
	c.promote(alias)
	h.metrics.SetAliases(h.registry.Len())
	c.log.Info().Str("alias", alias).Msg("alias registered")

	c.notify(fmt.Sprintf(noticeWelcome, alias))
	h.announce(c, fmt.Sprintf(noticeJoined, alias))
}

func (h *Hub) renameAlias(c *Client, current string, p packet.Packet) {
	alias := requestedAlias(p)
	if err := packet.ValidAlias(alias); err != nil {
		c.notify(fmt.Sprintf(noticeAliasInvalid, alias))
		return
	}
	if err := h.registry.Rename(current, alias); err != nil {
		c.log.Debug().Err(err).Str("alias", current).Msg("rename rejected")
		if errors.Is(err, registry.ErrAliasTaken) {
			c.notify(fmt.Sprintf(noticeAliasTaken, alias))
		} else {
			c.notify(fmt.Sprintf(noticeNoSuchUser, current))
		}
		return
	}
	if alias == current {
		c.notify(fmt.Sprintf(noticeRenamed, alias))
		return
	}
	c.rename(alias)
	c.log.Info().Str("from", current).Str("alias", alias).Msg("alias renamed")

	c.notify(fmt.Sprintf(noticeRenamed, alias))
	h.announce(c, fmt.Sprintf(noticeRenamedOther, current, alias))
}

func (h *Hub) unicast(c *Client, p packet.Packet, raw []byte) {
	target, err := h.registry.Lookup(p.Destination)
	if err != nil {
		c.log.Debug().Err(fmt.Errorf("%w: %q", ErrNoSuchUser, p.Destination)).Msg("unicast not delivered")
		c.notify(fmt.Sprintf(noticeNoSuchUser, p.Destination))
		return
	}
	h.deliver(target, raw)
}

// broadcast forwards raw to every registered session except the sender.
func (h *Hub) broadcast(sender *Client, raw []byte) {
	entries := h.registry.Snapshot()
	for _, e := range entries {
		if e.Conn == sender {
			continue
		}
		h.deliver(e.Conn, raw)
	}
	sender.log.Debug().Int("recipients", max(len(entries)-1, 0)).Msg("broadcast forwarded")
}

func (h *Hub) who(c *Client, alias string) {
	c.notify(strings.Join(h.registry.Aliases(alias), ","))
}

func (h *Hub) bye(c *Client, alias string) {
	if h.registry.RemoveIf(alias, c) && c.markDeparted() {
		h.announce(c, fmt.Sprintf(noticeLeft, alias))
	}
	h.metrics.SetAliases(h.registry.Len())
	c.log.Info().Str("alias", alias).Msg("said bye")
}

// announce sends a notice to every registered session except skip, each in
// its own cipher.
func (h *Hub) announce(skip *Client, text string) {
	for _, e := range h.registry.Snapshot() {
		if e.Conn == skip {
			continue
		}
		e.Conn.notifyAs(e.Alias, text)
	}
}

// deliver queues frame on target. A peer whose queue is full is dropped so
// it cannot stall the sender.
func (h *Hub) deliver(target *Client, frame []byte) {
	err := target.enqueue(frame)
	if err == nil {
		return
	}
	h.metrics.DroppedSend()
	if errors.Is(err, ErrQueueFull) {
		target.log.Warn().Err(err).Msg("dropping slow client")
		target.Close()
		return
	}
	target.log.Debug().Err(err).Msg("frame not delivered")
}
