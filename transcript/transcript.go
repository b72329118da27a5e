// Package transcript writes the session transcript as NDJSON.
//
// The first line holds the session id and start time. Every following line
// is a {timestamp, role, content} record; the last record of a closed
// session has role "summary".
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RoleSummary is the role of the final usage record.
const RoleSummary = "summary"

// ErrClosed is returned when writing to a closed transcript.
var ErrClosed = errors.New("transcript: closed")

// Header is the first line of a transcript.
type Header struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// Record is one transcript line.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Agent     string    `json:"agent,omitempty"`
	Content   string    `json:"content"`
}

// Writer appends records to an NDJSON stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	closed bool
	path   string
}

// New writes the header for sessionID to w and returns a Writer. If w is an
// io.Closer it is closed by Close.
func New(w io.Writer, sessionID string) (*Writer, error) {
	tw := &Writer{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}
	if err := tw.enc.Encode(Header{SessionID: sessionID, StartedAt: time.Now().UTC()}); err != nil {
		return nil, fmt.Errorf("transcript: write header: %w", err)
	}
	return tw, nil
}

// Create opens dir/<sessionID>.jsonl and writes the header.
func Create(dir, sessionID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create directory: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript: open: %w", err)
	}
	w, err := New(f, sessionID)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.path = path
	return w, nil
}

// Discard returns a Writer that drops every record.
func Discard(sessionID string) *Writer {
	w, _ := New(io.Discard, sessionID)
	return w
}

// Path returns the file path for writers created by Create.
func (w *Writer) Path() string { return w.path }

// Write appends a record.
func (w *Writer) Write(role, agent, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	rec := Record{Timestamp: time.Now().UTC(), Role: role, Agent: agent, Content: content}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("transcript: write record: %w", err)
	}
	return nil
}

// Summary appends the final summary record.
func (w *Writer) Summary(content string) error {
	return w.Write(RoleSummary, "", content)
}

// Close closes the underlying writer. Further writes fail with ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Read parses a transcript. Malformed lines yield an error.
func Read(r io.Reader) (Header, []Record, error) {
	var (
		hdr  Header
		recs []Record
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			if err := json.Unmarshal(line, &hdr); err != nil {
				return Header{}, nil, fmt.Errorf("transcript: decode header: %w", err)
			}
			first = false
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return Header{}, nil, fmt.Errorf("transcript: decode record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return Header{}, nil, fmt.Errorf("transcript: read: %w", err)
	}
	return hdr, recs, nil
}
