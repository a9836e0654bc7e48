// Package ipc carries owner-session commands over a unix socket as
// newline-delimited JSON, one request and one response per connection.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
)

// Commands served by the live-session owner.
const (
	CommandStatus = "status"
	CommandToggle = "toggle"
	CommandStop   = "stop"
	CommandSay    = "say"
)

// maxLineBytes bounds one JSON line in either direction.
const maxLineBytes = 64 << 10

var errLineTooLong = errors.New("message exceeds 64 KiB")

type Request struct {
	// ID correlates the response; Send fills it when empty.
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
	// Text is the utterance for CommandSay.
	Text string `json:"text,omitempty"`
}

type Response struct {
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(io.LimitReader(r, maxLineBytes+1)).ReadBytes('\n')
	if len(line) > maxLineBytes {
		return nil, errLineTooLong
	}
	return line, err
}

func writeLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
