// Package jobmgr runs named background jobs under a shared parent context
// and tracks which of them are alive.
//
//	jm := jobmgr.New(ctx, log)
//	_ = jm.Start("discord", session.Run)
//	...
//	jm.StopAll()
//	jm.Wait()
package jobmgr

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Failure is reported when a job ends with an error or a panic.
type Failure struct {
	Job string
	Err error
}

func (f Failure) Error() string { return fmt.Sprintf("job %s: %v", f.Job, f.Err) }
func (f Failure) Unwrap() error { return f.Err }

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is safe for concurrent use.
type Manager struct {
	ctx      context.Context
	log      zerolog.Logger
	mu       sync.Mutex
	jobs     map[string]*job
	wg       sync.WaitGroup
	failures chan Failure
}

// New returns a Manager whose jobs are cancelled when parent is.
func New(parent context.Context, log zerolog.Logger) *Manager {
	return &Manager{
		ctx:      parent,
		log:      log,
		jobs:     make(map[string]*job),
		failures: make(chan Failure, 8),
	}
}

// Start runs fn in its own goroutine. Names are unique among running jobs.
func (m *Manager) Start(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("job %q is already running", name)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer cancel()

		log := m.log.With().Str("job", name).Logger()
		log.Debug().Msg("job running")
		err := run(ctx, fn)

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("job failed")
			select {
			case m.failures <- Failure{Job: name, Err: err}:
			default:
			}
			return
		}
		log.Debug().Msg("job done")
	}()
	return nil
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Failures delivers jobs that ended with an error while not cancelled.
func (m *Manager) Failures() <-chan Failure {
	return m.failures
}

// Stop cancels the named job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not running", name)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll cancels every running job without waiting.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
	}
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Running returns the names of live jobs, sorted.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Status returns a human-readable summary, e.g. "Running jobs: console, retention".
func (m *Manager) Status() string {
	active := m.Running()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return "Running jobs: " + strings.Join(active, ", ")
}
