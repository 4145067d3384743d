package client

import (
	"bufio"
	"io"
	"strings"

	"github.com/Tyrowin/gorelay/internal/packet"
)

// LineSource yields one line of user input at a time. ReadLine returns
// io.EOF when input is exhausted.
type LineSource interface {
	ReadLine() (string, error)
}

// ScannerSource reads newline-terminated lines from an io.Reader.
type ScannerSource struct {
	sc *bufio.Scanner
}

func NewLineSource(r io.Reader) *ScannerSource {
	return &ScannerSource{sc: bufio.NewScanner(r)}
}

func (s *ScannerSource) ReadLine() (string, error) {
	if s.sc.Scan() {
		return strings.TrimRight(s.sc.Text(), "\r"), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Input is one parsed user command.
type Input struct {
	Verb        packet.Verb
	Destination string
	Message     string
}

// ParseInput splits "target:message" user input. The target is all, who,
// bye, reg or an alias; the message may itself contain colons. Lines that do
// not fit the grammar are rejected.
func ParseInput(line string) (Input, bool) {
	target, message, found := strings.Cut(strings.TrimSpace(line), ":")
	target = strings.TrimSpace(target)
	if !found || target == "" {
		return Input{}, false
	}

	switch packet.Verb(target) {
	case packet.VerbAll:
		return Input{Verb: packet.VerbAll, Destination: string(packet.VerbAll), Message: message}, true
	case packet.VerbWho:
		return Input{Verb: packet.VerbWho, Destination: packet.ServerAlias}, true
	case packet.VerbBye:
		return Input{Verb: packet.VerbBye, Destination: packet.ServerAlias}, true
	case packet.VerbRegister:
		alias := strings.TrimSpace(message)
		if alias == "" {
			return Input{}, false
		}
		return Input{Verb: packet.VerbRegister, Destination: packet.ServerAlias, Message: alias}, true
	}

	if len(target) > packet.AliasWidth || strings.ContainsAny(target, " \t") {
		return Input{}, false
	}
	return Input{Verb: packet.VerbOne, Destination: target, Message: message}, true
}
