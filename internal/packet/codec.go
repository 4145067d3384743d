package packet

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// padding is stripped from both ends of every decoded field.
const padding = " \x00"

// Encode serialises p into exactly FrameSize bytes. Values wider than their
// slot are truncated at the last complete UTF-8 sequence that fits.
func Encode(p Packet) []byte {
	buf := bytes.Repeat([]byte{' '}, FrameSize)
	put(buf, versionOffset, VersionWidth, p.Version)
	put(buf, sourceOffset, AliasWidth, p.Source)
	put(buf, destOffset, AliasWidth, p.Destination)
	put(buf, verbOffset, VerbWidth, string(p.Verb))
	put(buf, encodingOffset, EncodingWidth, p.Encoding)
	put(buf, checksumOffset, ChecksumWidth, p.Checksum)
	put(buf, messageOffset, MessageWidth, p.Message)
	return buf
}

func put(buf []byte, offset, width int, value string) {
	copy(buf[offset:offset+width], Truncate(value, width))
}

// Truncate returns the longest prefix of s that fits in width bytes without
// splitting a UTF-8 sequence.
func Truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	cut := width
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Decode parses one frame. A frame must carry at least the full header and
// never more than FrameSize bytes; a short message region is accepted.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrMalformedFrame, len(b), HeaderSize)
	}
	if len(b) > FrameSize {
		return Packet{}, fmt.Errorf("%w: %d bytes exceeds frame size %d", ErrMalformedFrame, len(b), FrameSize)
	}

	var (
		p   Packet
		err error
	)
	field := func(offset, width int) string {
		if err != nil {
			return ""
		}
		end := offset + width
		if end > len(b) {
			end = len(b)
		}
		raw := b[offset:end]
		if !utf8.Valid(raw) {
			err = fmt.Errorf("%w: field at offset %d is not valid UTF-8", ErrMalformedFrame, offset)
			return ""
		}
		return strings.Trim(string(raw), padding)
	}

	p.Version = field(versionOffset, VersionWidth)
	p.Source = field(sourceOffset, AliasWidth)
	p.Destination = field(destOffset, AliasWidth)
	p.Verb = Verb(field(verbOffset, VerbWidth))
	p.Encoding = field(encodingOffset, EncodingWidth)
	p.Checksum = field(checksumOffset, ChecksumWidth)
	p.Message = field(messageOffset, MessageWidth)
	if err != nil {
		return Packet{}, err
	}
	return p, nil
}

// Canonical returns b padded with spaces to FrameSize. Decode accepts frames
// shorter than FrameSize, but every frame written to a peer must be full size.
func Canonical(b []byte) []byte {
	if len(b) >= FrameSize {
		return b
	}
	buf := bytes.Repeat([]byte{' '}, FrameSize)
	copy(buf, b)
	return buf
}

// ResendBlock returns the out-of-band RESEND control signal. It is padded to
// FrameSize so that stream receivers stay aligned on frame boundaries.
func ResendBlock() []byte {
	buf := bytes.Repeat([]byte{' '}, FrameSize)
	copy(buf, resendToken)
	return buf
}

// IsResend reports whether b is the RESEND control signal. Recognition is by
// literal content; b is never decoded as a packet.
func IsResend(b []byte) bool {
	return string(bytes.Trim(b, padding)) == resendToken
}
