// Package relay turns a Gemini streaming response body into a plain text
// stream.
//
// The upstream body is newline-delimited JSON, optionally SSE framed with
// "data:" markers, or a JSON array spread over several lines. Records may be
// split across reads and across lines. The relay decodes bytes incrementally,
// reassembles records, extracts each text fragment and writes it downstream
// as soon as it is complete. Malformed records are dropped without breaking
// the stream.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/papercomputeco/relay/pkg/gemini"
	"github.com/papercomputeco/relay/pkg/utils"
)

const (
	// DefaultReadBufferSize is the number of bytes read from upstream per pass.
	DefaultReadBufferSize = 4096

	// DefaultMaxPendingBytes bounds a record held for reassembly.
	DefaultMaxPendingBytes = 1 << 20

	// MaxReadBufferSize caps the per-pass read buffer.
	MaxReadBufferSize = 1 << 20

	doneSentinel = "[DONE]"
	dataPrefix   = "data:"
)

// ErrDownstreamWrite wraps failures writing to the downstream writer.
var ErrDownstreamWrite = errors.New("relay: write downstream")

// sseFieldPrefixes are SSE lines that never carry record data.
var sseFieldPrefixes = []string{":", "event:", "id:", "retry:"}

// Config tunes a Relay.
type Config struct {
	ReadBufferSize  int
	MaxPendingBytes int
}

// Stats counts what a single Pump did.
type Stats struct {
	Records   int `json:"records"`
	Fragments int `json:"fragments"`
	Bytes     int `json:"bytes"`
	Dropped   int `json:"dropped"`
}

// Relay pumps upstream streaming bodies to downstream writers. It holds no
// per-stream state and is safe for concurrent use.
type Relay struct {
	config Config
	logger *slog.Logger
}

// New creates a Relay, filling unset config fields with defaults and capping
// the read buffer at MaxReadBufferSize.
func New(cfg Config, logger *slog.Logger) *Relay {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.ReadBufferSize > MaxReadBufferSize {
		cfg.ReadBufferSize = MaxReadBufferSize
	}
	if cfg.MaxPendingBytes <= 0 {
		cfg.MaxPendingBytes = DefaultMaxPendingBytes
	}

	return &Relay{
		config: cfg,
		logger: logger,
	}
}

// Pump reads src until end of input, writing each text fragment to dst in
// arrival order. It stops early when ctx is done, when reading src fails, or
// when a write to dst fails, and returns the cause. The caller owns src and
// dst and must close them.
func (r *Relay) Pump(ctx context.Context, src io.Reader, dst io.Writer) (Stats, error) {
	s := &stream{
		dec:        NewDecoder(),
		dst:        dst,
		maxPending: r.config.MaxPendingBytes,
		logger:     r.logger,
	}

	buf := make([]byte, r.config.ReadBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return s.stats, err
		}

		n, err := src.Read(buf)
		if n > 0 {
			s.feed(s.dec.Decode(buf[:n]))
			if s.err != nil {
				return s.stats, s.err
			}
		}

		if errors.Is(err, io.EOF) {
			s.finish()
			return s.stats, s.err
		}
		if err != nil {
			return s.stats, fmt.Errorf("relay: read upstream: %w", err)
		}
	}
}

// stream is the buffer state of one Pump call.
type stream struct {
	dec        *Decoder
	dst        io.Writer
	maxPending int
	logger     *slog.Logger

	// tail is the unterminated last line of decoded text.
	tail string

	// pending is a record fragment awaiting more lines.
	pending string

	stats Stats
	err   error
}

func (s *stream) feed(text string) {
	s.tail += text
	for s.err == nil {
		i := strings.IndexByte(s.tail, '\n')
		if i < 0 {
			return
		}
		line := s.tail[:i]
		s.tail = s.tail[i+1:]
		s.line(line)
	}
}

func (s *stream) finish() {
	s.feed(s.dec.Flush())
	if s.err != nil {
		return
	}

	if s.tail != "" {
		line := s.tail
		s.tail = ""
		s.line(line)
	}

	if s.pending != "" {
		s.drop("incomplete record at end of stream", s.pending)
		s.pending = ""
	}
}

func (s *stream) line(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	if strings.HasPrefix(line, dataPrefix) {
		line = strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if line == "" {
			return
		}
	} else if isSSEField(line) {
		return
	}

	if line == doneSentinel {
		return
	}

	if s.pending != "" {
		joined := s.pending + "\n" + line
		if values, ok := complete(joined); ok {
			s.pending = ""
			s.emit(values)
			return
		}

		if looksLikeRecordStart(line) {
			if values, ok := complete(line); ok && isRecord(values) {
				s.drop("superseded fragment", s.pending)
				s.pending = ""
				s.emit(values)
				return
			}
		}

		s.hold(joined)
		return
	}

	if values, ok := complete(line); ok {
		s.emit(values)
		return
	}

	// Array punctuation between records.
	if stripFraming(line) == "" {
		return
	}

	s.hold(line)
}

func (s *stream) hold(fragment string) {
	if len(fragment) > s.maxPending {
		s.drop("record exceeds max pending bytes", fragment)
		s.pending = ""
		return
	}
	s.pending = fragment
}

func (s *stream) emit(values []json.RawMessage) {
	for _, v := range values {
		if s.err != nil {
			return
		}

		if len(v) == 0 || v[0] != '{' {
			s.drop("value is not a record", string(v))
			continue
		}

		var record gemini.GenerateContentResponse
		if err := json.Unmarshal(v, &record); err != nil {
			s.drop("record does not match schema", string(v))
			continue
		}

		if record.Error != nil {
			s.logger.Warn("upstream stream reported an error",
				"code", record.Error.Code,
				"status", record.Error.Status,
				"message", record.Error.Message,
			)
			s.stats.Dropped++
			continue
		}

		s.stats.Records++

		text := record.Text()
		if text == "" {
			continue
		}

		n, err := io.WriteString(s.dst, text)
		s.stats.Bytes += n
		if err != nil {
			s.err = fmt.Errorf("%w: %w", ErrDownstreamWrite, err)
			return
		}
		s.stats.Fragments++
	}
}

// dropPreviewLen caps how much of a dropped record is logged.
const dropPreviewLen = 64

func (s *stream) drop(reason, text string) {
	s.stats.Dropped++
	s.logger.Debug("dropped stream record",
		"reason", reason,
		"bytes", len(text),
		"preview", utils.Truncate(text, dropPreviewLen),
	)
}

// complete reports whether text is a whole JSON value, either as is or once
// array framing is stripped. A JSON array yields its elements in order.
func complete(text string) ([]json.RawMessage, bool) {
	if values, ok := parseValue(text); ok {
		return values, true
	}

	if stripped := stripFraming(text); stripped != "" && stripped != text {
		return parseValue(stripped)
	}

	return nil, false
}

func parseValue(text string) ([]json.RawMessage, bool) {
	b := []byte(text)
	if !json.Valid(b) {
		return nil, false
	}

	if b[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(b, &elems); err != nil {
			return nil, false
		}
		return elems, true
	}

	return []json.RawMessage{b}, true
}

// stripFraming removes the array punctuation that surrounds records in a
// multi-line JSON array.
func stripFraming(text string) string {
	t := strings.TrimLeft(text, "[, \t\r\n")
	return strings.TrimRight(t, "], \t\r\n")
}

// isRecord reports whether every value is an object carrying candidates or an
// error. A nested object from inside a multi-line record does not qualify.
func isRecord(values []json.RawMessage) bool {
	if len(values) == 0 {
		return false
	}

	for _, v := range values {
		var probe struct {
			Candidates json.RawMessage `json:"candidates"`
			Error      json.RawMessage `json:"error"`
		}
		if len(v) == 0 || v[0] != '{' || json.Unmarshal(v, &probe) != nil {
			return false
		}
		if probe.Candidates == nil && probe.Error == nil {
			return false
		}
	}
	return true
}

func looksLikeRecordStart(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, "[, \t"), "{")
}

func isSSEField(line string) bool {
	for _, p := range sseFieldPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
