package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/concierge/channel"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/session"
)

var (
	// ErrCapacity is returned by Start when MaxConcurrentSessions are running.
	ErrCapacity = errors.New("runner at capacity")
	// ErrStopped is returned by Start after Shutdown.
	ErrStopped = errors.New("runner stopped")
)

// Factory builds the session for a new caller.
type Factory func(sessionID string) (*session.Session, error)

// Options holds configuration overrides passed to New().
type Options struct {
	// MaxConcurrentSessions limits concurrently hosted sessions.
	MaxConcurrentSessions int
	Logger                logging.Logger
}

type run struct {
	sess   *session.Session
	cancel context.CancelFunc
}

// Runner hosts sessions. Public methods are safe for concurrent use.
type Runner struct {
	factory     Factory
	maxSessions int
	logger      logging.Logger

	mu         sync.RWMutex
	activeRuns map[string]*run
	stopped    bool
	wg         sync.WaitGroup
}

// New constructs a Runner with optional overrides.
func New(factory Factory, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentSessions: 10,
		Logger:                logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		factory:     factory,
		maxSessions: opts.MaxConcurrentSessions,
		logger:      logging.OrNoOp(opts.Logger),
		activeRuns:  make(map[string]*run),
	}
}

// Start creates a session and runs it over ch in the background. An empty
// sessionID selects a random one. The returned channel yields the result of
// the session once it has ended and been closed.
func (r *Runner) Start(ctx context.Context, sessionID string, ch channel.Channel) (string, <-chan error, error) {
	if sessionID == "" {
		sessionID = core.NewID()
	}

	r.mu.Lock()
	switch {
	case r.stopped:
		r.mu.Unlock()
		return "", nil, ErrStopped
	case r.maxSessions > 0 && len(r.activeRuns) >= r.maxSessions:
		r.mu.Unlock()
		return "", nil, ErrCapacity
	}
	if _, exists := r.activeRuns[sessionID]; exists {
		r.mu.Unlock()
		return "", nil, fmt.Errorf("session %s already running", sessionID)
	}
	// reserve the id while the session is built
	rn := &run{}
	r.activeRuns[sessionID] = rn
	r.wg.Add(1)
	r.mu.Unlock()

	sess, err := r.factory(sessionID)
	if err != nil {
		r.release(sessionID)
		r.wg.Done()
		return "", nil, fmt.Errorf("create session: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		_ = sess.Close(ctx)
		r.release(sessionID)
		r.wg.Done()
		return "", nil, ErrStopped
	}
	rn.sess, rn.cancel = sess, cancel
	r.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer r.release(sessionID)

		r.logger.Info("runner.session.started", "session_id", sessionID)
		err := sess.Run(runCtx, ch)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("runner.session.failed", "session_id", sessionID, "error", err.Error())
		}
		r.logger.Info("runner.session.ended", "session_id", sessionID, "usage", sess.Usage().String())
		errCh <- err
		close(errCh)
	}()

	return sessionID, errCh, nil
}

func (r *Runner) release(sessionID string) {
	r.mu.Lock()
	delete(r.activeRuns, sessionID)
	r.mu.Unlock()
}

// Cancel stops a running session by id.
func (r *Runner) Cancel(sessionID string) error {
	r.mu.RLock()
	rn, exists := r.activeRuns[sessionID]
	r.mu.RUnlock()

	if !exists || rn.cancel == nil {
		return &core.NotFoundError{Kind: "session", Key: sessionID}
	}
	rn.cancel()
	return nil
}

// Session returns the running session with id.
func (r *Runner) Session(sessionID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.activeRuns[sessionID]
	if !ok || rn.sess == nil {
		return nil, false
	}
	return rn.sess, true
}

// Active returns the ids of running sessions in sorted order.
func (r *Runner) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.activeRuns))
	for id := range r.activeRuns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown refuses new sessions, cancels running ones and waits for them to
// close or for ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	for _, rn := range r.activeRuns {
		if rn.cancel != nil {
			rn.cancel()
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
