package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type auditEntry struct {
	Time       time.Time `json:"time"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

type auditSink interface {
	Write(entry auditEntry) error
}

// auditLog keeps the most recent admin requests in a fixed ring and mirrors
// each entry to an optional sink.
type auditLog struct {
	mu   sync.Mutex
	ring []auditEntry
	next int
	full bool
	sink auditSink
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{ring: make([]auditEntry, max), sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	l.ring[l.next] = entry
	l.next++
	if l.next == len(l.ring) {
		l.next = 0
		l.full = true
	}
	l.mu.Unlock()

	if l.sink != nil {
		// Sink failures must not surface into the request path.
		_ = l.sink.Write(entry)
	}
}

// snapshot returns entries oldest first.
func (l *auditLog) snapshot() []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		out := make([]auditEntry, l.next)
		copy(out, l.ring[:l.next])
		return out
	}
	out := make([]auditEntry, 0, len(l.ring))
	out = append(out, l.ring[l.next:]...)
	out = append(out, l.ring[:l.next]...)
	return out
}

func (l *auditLog) listLimit(limit int) []auditEntry {
	all := l.snapshot()
	if limit <= 0 || limit > len(all) {
		return all
	}
	return all[len(all)-limit:]
}

// record appends one entry per admin request, final status included,
// whether or not the request was authorized.
func (l *auditLog) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/admin") {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		l.add(auditEntry{
			Time:       time.Now().UTC(),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// fileAuditSink appends entries to a local file, one JSON object per line.
type fileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

// newFileAuditSink returns (nil, nil) for an empty path so callers can
// treat the sink as strictly optional.
func newFileAuditSink(path string) (*fileAuditSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &fileAuditSink{file: f}, nil
}

// Write tolerates a nil receiver: a nil *fileAuditSink stored in the
// auditSink interface is still a non-nil interface value.
func (s *fileAuditSink) Write(entry auditEntry) error {
	if s == nil || s.file == nil {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}
