package usage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// NewSink creates a postgres-backed sink when configured, otherwise in-memory.
func NewSink(ctx context.Context, databaseURL string) (Sink, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemorySink(), nil
	}
	return NewPostgresSink(ctx, databaseURL)
}

// InMemorySink keeps records in-process for local/dev use and tests.
type InMemorySink struct {
	mu      sync.Mutex
	records []Record
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Track(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	for _, r := range s.records {
		if r.SessionID == record.SessionID {
			return nil
		}
	}
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of everything tracked so far.
func (s *InMemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *InMemorySink) Close() error { return nil }
