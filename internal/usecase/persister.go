package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sales-agent/internal/domain"
)

const (
	defaultQueueSize      = 64
	defaultPersistTimeout = 5 * time.Second
)

// ErrPersisterClosed is passed to the error hook for work enqueued after
// Close.
var ErrPersisterClosed = errors.New("usecase: persister is closed")

// ContextSaver writes a conversation context to durable storage.
type ContextSaver interface {
	Save(ctx context.Context, c *domain.ConversationContext) error
}

// TurnArchiver keeps a durable record of completed turns.
type TurnArchiver interface {
	ArchiveTurn(ctx context.Context, rec domain.TurnRecord) error
}

// ErrorHook observes persistence failures.
type ErrorHook func(sessionID string, err error)

type persistJob struct {
	snapshot *domain.ConversationContext
	record   domain.TurnRecord
}

// Persister does the durable side of a turn off the request path: it
// archives the turn record and, when a saver is configured, writes the
// snapshot. The live session store is written by the caller before Enqueue.
// One worker drains a bounded queue; when the queue is full the job runs in
// its own goroutine so Enqueue never blocks.
type Persister struct {
	saver    ContextSaver
	archiver TurnArchiver
	onError  ErrorHook
	logger   *slog.Logger
	timeout  time.Duration

	queue    chan persistJob
	done     chan struct{}
	overflow sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type PersisterOption func(*persisterConfig)

type persisterConfig struct {
	saver     ContextSaver
	archiver  TurnArchiver
	onError   ErrorHook
	logger    *slog.Logger
	queueSize int
	timeout   time.Duration
}

// WithSaver writes every snapshot to s.
func WithSaver(s ContextSaver) PersisterOption {
	return func(c *persisterConfig) { c.saver = s }
}

// WithArchiver also writes a TurnRecord for every job.
func WithArchiver(a TurnArchiver) PersisterOption {
	return func(c *persisterConfig) { c.archiver = a }
}

func WithErrorHook(h ErrorHook) PersisterOption {
	return func(c *persisterConfig) { c.onError = h }
}

func WithPersisterLogger(l *slog.Logger) PersisterOption {
	return func(c *persisterConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithQueueSize(n int) PersisterOption {
	return func(c *persisterConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithPersistTimeout bounds each save and archive call.
func WithPersistTimeout(d time.Duration) PersisterOption {
	return func(c *persisterConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewPersister starts the worker. Close must be called to stop it.
func NewPersister(opts ...PersisterOption) (*Persister, error) {
	cfg := persisterConfig{
		logger:    slog.Default(),
		queueSize: defaultQueueSize,
		timeout:   defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Persister{
		saver:    cfg.saver,
		archiver: cfg.archiver,
		onError:  cfg.onError,
		logger:   cfg.logger,
		timeout:  cfg.timeout,
		queue:    make(chan persistJob, cfg.queueSize),
		done:     make(chan struct{}),
	}
	if p.onError == nil {
		p.onError = func(sessionID string, err error) {
			p.logger.Error("persist failed", "session_id", sessionID, "err", err)
		}
	}
	go p.run()
	return p, nil
}

// Enqueue schedules snapshot to be saved and rec to be archived. The
// snapshot must not be modified by the caller afterwards.
func (p *Persister) Enqueue(snapshot *domain.ConversationContext, rec domain.TurnRecord) {
	job := persistJob{snapshot: snapshot, record: rec}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.onError(rec.SessionID, ErrPersisterClosed)
		return
	}
	select {
	case p.queue <- job:
	default:
		p.logger.Warn("persist queue full, saving out of band", "session_id", rec.SessionID)
		p.overflow.Add(1)
		go func() {
			defer p.overflow.Done()
			p.persist(job)
		}()
	}
}

// Close stops accepting work and waits until every queued job has been
// persisted or ctx is done.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		<-p.done
		p.overflow.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Persister) run() {
	defer close(p.done)
	for job := range p.queue {
		p.persist(job)
	}
}

func (p *Persister) persist(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	id := job.record.SessionID
	if job.snapshot != nil && p.saver != nil {
		id = job.snapshot.SessionID
		if err := p.saver.Save(ctx, job.snapshot); err != nil {
			p.onError(id, err)
		} else {
			p.logger.Debug("context persisted", "session_id", id)
		}
	}
	if p.archiver != nil && job.record.SessionID != "" {
		if err := p.archiver.ArchiveTurn(ctx, job.record); err != nil {
			p.onError(id, err)
		}
	}
}
