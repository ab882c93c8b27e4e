package ami

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxLine = 64 * 1024

// Parser reads an AMI byte stream and emits Events.
type Parser struct {
	scanner *bufio.Scanner
}

// NewParser creates a Parser that reads from r.
func NewParser(r io.Reader) *Parser {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxLine)
	return &Parser{scanner: s}
}

// Next reads the next block from the stream. It returns false once the
// stream is exhausted; Err then reports why.
func (p *Parser) Next() (Event, bool) {
	var headers []header

	for p.scanner.Scan() {
		line := strings.TrimRight(p.scanner.Text(), "\r")

		if line == "" {
			if len(headers) > 0 {
				return Event{headers: headers}, true
			}
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.ContainsAny(key, " \t") {
			// The banner ("Asterisk Call Manager/x.y") precedes any block.
			if len(headers) == 0 {
				continue
			}
			// Continuation text, e.g. the output of a Command action.
			headers = append(headers, header{Value: line})
			continue
		}
		headers = append(headers, header{Key: key, Value: strings.TrimPrefix(value, " ")})
	}

	if len(headers) > 0 {
		return Event{headers: headers}, true
	}
	return Event{}, false
}

// Err returns the first non-EOF read error.
func (p *Parser) Err() error {
	return p.scanner.Err()
}

// ParseAll reads all blocks from the stream.
func (p *Parser) ParseAll() []Event {
	var events []Event
	for {
		evt, ok := p.Next()
		if !ok {
			return events
		}
		events = append(events, evt)
	}
}

// ParseBytes parses every block in data.
func ParseBytes(data []byte) []Event {
	return NewParser(bytes.NewReader(data)).ParseAll()
}
