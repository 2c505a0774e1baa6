package audit

import (
	"context"
	"time"
)

// Logger is the logging surface the writer needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Writer persists audit entries asynchronously from a single goroutine,
// matching SQLite's serial write model.
type Writer struct {
	repo   Repository
	logger Logger
	ch     chan *AuditLog
	done   chan struct{}
}

// NewWriter creates a writer with the given buffer size. Call Run to start it.
func NewWriter(repo Repository, bufferSize int, logger Logger) *Writer {
	return &Writer{
		repo:   repo,
		logger: logger,
		ch:     make(chan *AuditLog, bufferSize),
		done:   make(chan struct{}),
	}
}

// Record enqueues an entry. It never blocks; when the buffer is full the
// entry is dropped and a warning is logged.
func (w *Writer) Record(entry *AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	select {
	case w.ch <- entry:
	default:
		w.logger.Warn("audit buffer full, dropping entry",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
		)
	}
}

// Run writes entries until ctx is cancelled, then flushes what is still
// buffered and returns.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case entry := <-w.ch:
			w.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-w.ch:
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has flushed and returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) write(entry *AuditLog) {
	// The request that produced the entry is gone; use a fresh context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.repo.Create(ctx, entry); err != nil {
		w.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
