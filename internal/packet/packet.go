// Package packet owns the relay wire format.
//
// Every packet occupies exactly FrameSize bytes on the wire. Header fields
// are fixed-width, space-padded text slots at the offsets below; the message
// fills the second half of the frame.
//
//	field        offset  width
//	version           0      3
//	source            3     30
//	destination      33     30
//	verb             63      3
//	encoding         66     32
//	checksum         98     32
//	reserved        130    126
//	message         256    256
package packet

import (
	"errors"
	"fmt"
	"strings"
)

const (
	FrameSize  = 512
	HeaderSize = 256

	VersionWidth  = 3
	AliasWidth    = 30
	VerbWidth     = 3
	EncodingWidth = 32
	ChecksumWidth = 32
	MessageWidth  = FrameSize - HeaderSize

	versionOffset  = 0
	sourceOffset   = versionOffset + VersionWidth
	destOffset     = sourceOffset + AliasWidth
	verbOffset     = destOffset + AliasWidth
	encodingOffset = verbOffset + VerbWidth
	checksumOffset = encodingOffset + EncodingWidth
	messageOffset  = HeaderSize
)

const (
	Version       = "1.0"
	Unregistered  = "temp"
	ServerAlias   = "server"
	DefaultCipher = "cleartext"

	resendToken = "RESEND"
)

// Verb selects the dispatch behaviour for a packet.
type Verb string

const (
	VerbRegister Verb = "reg"
	VerbOne      Verb = "one"
	VerbAll      Verb = "all"
	VerbWho      Verb = "who"
	VerbBye      Verb = "bye"
	VerbServer   Verb = "svr"
)

// Known reports whether v belongs to the closed verb set.
func (v Verb) Known() bool {
	switch v {
	case VerbRegister, VerbOne, VerbAll, VerbWho, VerbBye, VerbServer:
		return true
	}
	return false
}

var (
	ErrMalformedFrame = errors.New("packet: malformed frame")
	ErrInvalidAlias   = errors.New("packet: invalid alias")
)

// Packet is the decoded form of one frame. All fields hold trimmed text.
type Packet struct {
	Version     string
	Source      string
	Destination string
	Verb        Verb
	Encoding    string
	Checksum    string
	Message     string
}

// New builds a packet for the current protocol version.
func New(source, destination string, verb Verb, message string) Packet {
	return Packet{
		Version:     Version,
		Source:      source,
		Destination: destination,
		Verb:        verb,
		Encoding:    DefaultCipher,
		Message:     message,
	}
}

// Server builds a server-originated packet addressed to dest.
func Server(dest, message string) Packet {
	return New(ServerAlias, dest, VerbServer, message)
}

func (p Packet) String() string {
	return fmt.Sprintf("%s %s->%s [%s/%s] %q", p.Verb, p.Source, p.Destination, p.Version, p.Encoding, p.Message)
}

// Validate checks the header fields a sender controls. It does not reject
// unknown verbs; dispatch ignores those.
func (p Packet) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("%w: missing version", ErrMalformedFrame)
	}
	if len(p.Source) > AliasWidth || len(p.Destination) > AliasWidth {
		return fmt.Errorf("%w: alias exceeds %d bytes", ErrInvalidAlias, AliasWidth)
	}
	if p.Verb == VerbOne && p.Destination == "" {
		return fmt.Errorf("%w: one requires a destination", ErrInvalidAlias)
	}
	return nil
}

// ValidAlias reports whether alias may be registered.
func ValidAlias(alias string) error {
	switch {
	case alias == "":
		return fmt.Errorf("%w: empty", ErrInvalidAlias)
	case len(alias) > AliasWidth:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidAlias, AliasWidth)
	case alias == Unregistered || alias == ServerAlias || alias == string(VerbAll) || alias == string(VerbWho) || alias == string(VerbBye) || alias == string(VerbRegister):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidAlias, alias)
	case strings.ContainsAny(alias, ":, \t\r\n"):
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidAlias, alias)
	}
	return nil
}
