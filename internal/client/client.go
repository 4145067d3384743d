// Package client implements the interactive side of the relay protocol:
// registration, user input, retransmission on RESEND and rendering of
// incoming packets.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gorelay/internal/checksum"
	"github.com/Tyrowin/gorelay/internal/cipher"
	"github.com/Tyrowin/gorelay/internal/packet"
	"github.com/Tyrowin/gorelay/internal/transport"
)

var (
	ErrRejected     = errors.New("client: registration rejected")
	ErrDisconnected = errors.New("client: disconnected by server")
	ErrNoInput      = errors.New("client: no alias provided")

	errQuit = errors.New("client: quit")
)

const aliasPrompt = "Provide your alias for the chat.\nreg: "

// Options configures a Client. Nil fields select cleartext, an optional
// checksum guard, discarded output and a disabled logger.
type Options struct {
	Cipher     cipher.Cipher
	Guard      *checksum.Guard
	MaxResends int
	Out        io.Writer
	Logger     *zerolog.Logger
}

// Client speaks the relay protocol over one channel.
type Client struct {
	ch      transport.Channel
	cipher  cipher.Cipher
	guard   *checksum.Guard
	resends *checksum.Tracker
	log     zerolog.Logger

	outMu sync.Mutex
	out   io.Writer

	sendMu sync.Mutex
	last   *packet.Packet

	mu      sync.Mutex
	alias   string
	closing atomic.Bool
}

func New(ch transport.Channel, opts Options) *Client {
	if opts.Cipher == nil {
		opts.Cipher = cipher.Cleartext{}
	}
	if opts.Guard == nil {
		opts.Guard = checksum.NewGuard(false)
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		ch:      ch,
		cipher:  opts.Cipher,
		guard:   opts.Guard,
		resends: checksum.NewTracker(opts.MaxResends),
		log:     logger.With().Str("component", "client").Str("remote", ch.RemoteAddr()).Logger(),
		out:     opts.Out,
		alias:   packet.Unregistered,
	}
}

func (c *Client) Alias() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alias
}

func (c *Client) setAlias(alias string) {
	c.mu.Lock()
	c.alias = alias
	c.mu.Unlock()
}

func (c *Client) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// Send enciphers p's message, stamps the checksum and writes the frame. The
// packet is kept for retransmission until the next Send.
func (c *Client) Send(p packet.Packet) error {
	p.Message = c.cipher.Encode(p.Message)
	p.Encoding = c.cipher.Name()

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.last = &p
	c.resends.Reset()
	return c.write(p)
}

// SendInput sends a parsed user command from the current alias.
func (c *Client) SendInput(in Input) error {
	return c.Send(packet.New(c.Alias(), in.Destination, in.Verb, in.Message))
}

// write stamps a fresh checksum on p. Callers hold sendMu.
func (c *Client) write(p packet.Packet) error {
	c.guard.Stamp(&p)
	if err := c.ch.Send(packet.Encode(p)); err != nil {
		return fmt.Errorf("send %s: %w", p.Verb, err)
	}
	return nil
}

// retransmit answers a RESEND by sending the last packet again.
func (c *Client) retransmit() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.last == nil {
		c.log.Debug().Msg("RESEND with nothing to retransmit")
		return nil
	}
	attempt, err := c.resends.Fail()
	if err != nil {
		return err
	}
	c.log.Debug().Int("attempt", attempt).Str("verb", string(c.last.Verb)).Msg("retransmitting")
	return c.write(*c.last)
}

// receive reads one frame. Cancelling ctx, or reaching its deadline,
// interrupts the read.
func (c *Client) receive(ctx context.Context) ([]byte, error) {
	if err := c.ch.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ch.SetReadDeadline(time.Now())
	})
	defer stop()

	block, err := c.ch.Receive()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return block, err
}

// Register claims alias and waits for the server's answer. A rejection
// returns ErrRejected with the server's explanation.
func (c *Client) Register(ctx context.Context, alias string) error {
	if err := c.Send(packet.New(packet.Unregistered, packet.ServerAlias, packet.VerbRegister, alias)); err != nil {
		return err
	}
	for {
		block, err := c.receive(ctx)
		if err != nil {
			return fmt.Errorf("awaiting registration: %w", err)
		}
		if packet.IsResend(block) {
			if err := c.retransmit(); err != nil {
				return err
			}
			continue
		}
		p, err := packet.Decode(block)
		if err != nil {
			return err
		}
		if p.Verb != packet.VerbServer {
			c.render(p)
			continue
		}
		text := cipher.LookupOrClear(p.Encoding).Decode(p.Message)
		if p.Destination == alias {
			c.setAlias(alias)
			c.log.Info().Str("alias", alias).Msg("registered")
			c.printf("[server] %s\n", text)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrRejected, text)
	}
}

// Login registers using alias, or prompts on src when alias is empty, and
// keeps prompting after each rejection until one succeeds.
func (c *Client) Login(ctx context.Context, src LineSource, alias string) error {
	for {
		if alias == "" {
			c.printf("%s", aliasPrompt)
			line, err := src.ReadLine()
			if errors.Is(err, io.EOF) {
				return ErrNoInput
			}
			if err != nil {
				return err
			}
			alias = strings.TrimSpace(line)
			if alias == "" {
				continue
			}
		}
		err := c.Register(ctx, alias)
		if !errors.Is(err, ErrRejected) {
			return err
		}
		c.printf("%v\n", err)
		alias = ""
	}
}

// render prints an incoming packet in the sender's cipher.
func (c *Client) render(p packet.Packet) {
	text := cipher.LookupOrClear(p.Encoding).Decode(p.Message)
	switch p.Verb {
	case packet.VerbServer:
		c.printf("[server] %s\n", text)
	case packet.VerbAll:
		c.printf("[%s to all] %s\n", p.Source, text)
	case packet.VerbOne:
		c.printf("[%s] %s\n", p.Source, text)
	default:
		c.log.Debug().Str("packet", p.String()).Msg("ignoring packet")
	}
}

// handle processes one frame from the server.
func (c *Client) handle(block []byte) error {
	if packet.IsResend(block) {
		return c.retransmit()
	}
	p, err := packet.Decode(block)
	if err != nil {
		return err
	}
	if err := c.guard.Check(p); err != nil {
		c.log.Warn().Err(err).Str("packet", p.String()).Msg("checksum mismatch on incoming packet")
	}
	if p.Verb == packet.VerbServer && p.Destination != packet.Unregistered && p.Destination != c.Alias() {
		c.log.Info().Str("alias", p.Destination).Msg("alias changed")
		c.setAlias(p.Destination)
	}
	c.render(p)
	return nil
}

// Run drives an interactive session until the user says bye, input ends,
// ctx is cancelled or the server drops the connection.
func (c *Client) Run(ctx context.Context, src LineSource) error {
	g, ctx := errgroup.WithContext(ctx)
	lines := readLines(src)

	g.Go(func() error {
		<-ctx.Done()
		c.closing.Store(true)
		_ = c.ch.Close()
		return nil
	})
	g.Go(func() error { return c.inputLoop(ctx, lines) })
	g.Go(c.receiveLoop)

	err := g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type lineResult struct {
	line string
	err  error
}

// readLines feeds src into a channel. The goroutine outlives Run when src
// blocks, which is the case for an interactive terminal.
func readLines(src LineSource) <-chan lineResult {
	lines := make(chan lineResult)
	go func() {
		defer close(lines)
		for {
			line, err := src.ReadLine()
			lines <- lineResult{line: line, err: err}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

func (c *Client) inputLoop(ctx context.Context, lines <-chan lineResult) error {
	for {
		var res lineResult
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-lines:
			if !ok {
				return nil
			}
			res = r
		}

		if res.err != nil {
			if !errors.Is(res.err, io.EOF) {
				c.log.Warn().Err(res.err).Msg("input error")
			}
			c.closing.Store(true)
			if err := c.SendInput(Input{Verb: packet.VerbBye, Destination: packet.ServerAlias}); err != nil {
				return err
			}
			return errQuit
		}

		in, ok := ParseInput(res.line)
		if !ok {
			if strings.TrimSpace(res.line) != "" {
				c.printf("usage: <alias>:message | all:message | who: | reg:newalias | bye:\n")
			}
			continue
		}
		if in.Verb == packet.VerbBye {
			c.closing.Store(true)
		}
		if err := c.SendInput(in); err != nil {
			return err
		}
		if in.Verb == packet.VerbBye {
			return errQuit
		}
	}
}

func (c *Client) receiveLoop() error {
	_ = c.ch.SetReadDeadline(time.Time{})
	for {
		block, err := c.ch.Receive()
		if err != nil {
			if c.closing.Load() {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		if err := c.handle(block); err != nil {
			return err
		}
	}
}
