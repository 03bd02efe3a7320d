// Package runlock serializes passes per configuration key. Contenders queue
// in arrival order and the holder hands the token to the head of the queue on
// release. An optional lock file extends the guard across processes.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotHeld is returned when releasing a token that no longer holds its key
	ErrNotHeld = errors.New("token does not hold the lock")
	// ErrHeldElsewhere is returned when another process holds the lock file
	ErrHeldElsewhere = errors.New("lock held by another process")
)

const fileLockRetry = 500 * time.Millisecond

// Token proves ownership of a key until released
type Token struct {
	ID         string
	Key        string
	AcquiredAt time.Time

	file *flock.Flock
}

// Ticket is a place in a key's queue
type Ticket struct {
	key    string
	ready  chan *Token
	queued bool
	l      *Locker
}

// Queued reports whether the ticket had to wait behind a holder
func (t *Ticket) Queued() bool {
	return t.queued
}

// Wait blocks until the ticket reaches the head of the queue and the token is
// handed over. Cancelling ctx gives up the place in the queue.
func (t *Ticket) Wait(ctx context.Context) (*Token, error) {
	select {
	case tok := <-t.ready:
		if err := t.l.lockFile(ctx, tok); err != nil {
			_ = t.l.Release(tok)
			return nil, err
		}
		return tok, nil
	case <-ctx.Done():
		if t.l.dequeue(t) {
			return nil, ctx.Err()
		}
		// Handed over while cancelling, pass it on
		_ = t.l.Release(<-t.ready)
		return nil, ctx.Err()
	}
}

// Option configures a Locker
type Option func(*Locker)

// WithLockDir enables lock files in dir
func WithLockDir(dir string) Option {
	return func(l *Locker) {
		l.lockDir = dir
	}
}

// Locker holds one FIFO queue per key
type Locker struct {
	mu      sync.Mutex
	held    map[string]*Token
	queues  map[string][]*Ticket
	lockDir string
	logger  zerolog.Logger
}

// New creates a Locker
func New(logger zerolog.Logger, opts ...Option) *Locker {
	l := &Locker{
		held:   make(map[string]*Token),
		queues: make(map[string][]*Ticket),
		logger: logger.With().Str("component", "runlock").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire takes the key when nobody holds it and nobody is waiting
func (l *Locker) TryAcquire(key string) (*Token, bool) {
	l.mu.Lock()
	if l.held[key] != nil || len(l.queues[key]) > 0 {
		l.mu.Unlock()
		return nil, false
	}
	tok := l.grantLocked(key)
	l.mu.Unlock()

	if err := l.tryLockFile(tok); err != nil {
		l.logger.Debug().Err(err).Str("key", key).Msg("Lock file unavailable")
		_ = l.Release(tok)
		return nil, false
	}
	return tok, true
}

// Enqueue registers a place in the key's queue without blocking. When the key
// is free the ticket is ready immediately.
func (l *Locker) Enqueue(key string) *Ticket {
	t := &Ticket{key: key, ready: make(chan *Token, 1), l: l}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] == nil && len(l.queues[key]) == 0 {
		t.ready <- l.grantLocked(key)
		return t
	}
	t.queued = true
	l.queues[key] = append(l.queues[key], t)
	l.logger.Debug().Str("key", key).Int("position", len(l.queues[key])).Msg("Queued for run lock")
	return t
}

// Acquire blocks until the key is handed over
func (l *Locker) Acquire(ctx context.Context, key string) (*Token, error) {
	return l.Enqueue(key).Wait(ctx)
}

// Release gives the key to the next ticket in line
func (l *Locker) Release(tok *Token) error {
	if tok == nil {
		return ErrNotHeld
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[tok.Key] != tok {
		return ErrNotHeld
	}

	var fileErr error
	if tok.file != nil {
		fileErr = tok.file.Unlock()
		tok.file = nil
	}

	delete(l.held, tok.Key)
	if queue := l.queues[tok.Key]; len(queue) > 0 {
		next := queue[0]
		if len(queue) == 1 {
			delete(l.queues, tok.Key)
		} else {
			l.queues[tok.Key] = queue[1:]
		}
		next.ready <- l.grantLocked(tok.Key)
	}

	if fileErr != nil {
		return fmt.Errorf("unlock lock file: %w", fileErr)
	}
	return nil
}

// Held reports whether key is currently held
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key] != nil
}

// Waiting returns the number of queued tickets for key
func (l *Locker) Waiting(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues[key])
}

func (l *Locker) grantLocked(key string) *Token {
	tok := &Token{ID: uuid.NewString(), Key: key, AcquiredAt: time.Now()}
	l.held[key] = tok
	return tok
}

func (l *Locker) dequeue(t *Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	queue := l.queues[t.key]
	for i, q := range queue {
		if q == t {
			l.queues[t.key] = append(queue[:i:i], queue[i+1:]...)
			if len(l.queues[t.key]) == 0 {
				delete(l.queues, t.key)
			}
			return true
		}
	}
	return false
}

// LockPath returns the lock file used for key, or "" without a lock dir
func (l *Locker) LockPath(key string) string {
	if l.lockDir == "" {
		return ""
	}
	return filepath.Join(l.lockDir, fmt.Sprintf("seedkeeper-%016x.lock", xxhash.Sum64String(key)))
}

func (l *Locker) newFileLock(key string) (*flock.Flock, error) {
	path := l.LockPath(key)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(l.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return flock.New(path), nil
}

func (l *Locker) tryLockFile(tok *Token) error {
	fl, err := l.newFileLock(tok.Key)
	if err != nil || fl == nil {
		return err
	}
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock file: %w", err)
	}
	if !ok {
		return ErrHeldElsewhere
	}
	l.setFile(tok, fl)
	return nil
}

func (l *Locker) lockFile(ctx context.Context, tok *Token) error {
	fl, err := l.newFileLock(tok.Key)
	if err != nil || fl == nil {
		return err
	}
	ok, err := fl.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		return fmt.Errorf("acquire lock file: %w", err)
	}
	if !ok {
		return ErrHeldElsewhere
	}
	l.setFile(tok, fl)
	return nil
}

func (l *Locker) setFile(tok *Token, fl *flock.Flock) {
	l.mu.Lock()
	tok.file = fl
	l.mu.Unlock()
}
