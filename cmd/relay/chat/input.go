package chatcmder

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterh/liner"
)

const (
	historyFile = "chat_history"

	// Unstyled: liner measures the prompt width byte by byte.
	userPrompt = "you> "
)

// lineReader yields one prompt per call and returns io.EOF when input ends.
type lineReader interface {
	ReadLine() (string, error)
	Close()
}

// scanReader reads piped input without echoing a prompt.
type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &scanReader{scanner: scanner}
}

func (s *scanReader) ReadLine() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scanReader) Close() {}

// linerReader edits input on a terminal and keeps history across sessions.
type linerReader struct {
	state   *liner.State
	history string
	logger  *slog.Logger
}

func newLinerReader(history string, log *slog.Logger) *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	r := &linerReader{state: state, history: history, logger: log}
	if history != "" {
		if f, err := os.Open(history); err == nil {
			if _, err := state.ReadHistory(f); err != nil {
				log.Debug("reading chat history", "error", err)
			}
			_ = f.Close()
		}
	}
	return r
}

func (r *linerReader) ReadLine() (string, error) {
	line, err := r.state.Prompt(userPrompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		r.state.AppendHistory(line)
	}
	return line, nil
}

func (r *linerReader) Close() {
	defer func() { _ = r.state.Close() }()

	if r.history == "" {
		return
	}
	f, err := os.OpenFile(r.history, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		r.logger.Debug("writing chat history", "error", err)
		return
	}
	defer f.Close()

	if _, err := r.state.WriteHistory(f); err != nil {
		r.logger.Debug("writing chat history", "error", err)
	}
}
