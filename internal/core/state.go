package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

// ErrNoTransport is returned by sends when the State has no transport.
var ErrNoTransport = errors.New("core: no transport configured")

// Status is the terminal state of one dispatch.
type Status int

const (
	StatusIgnored Status = iota
	StatusExecuted
	StatusRejected
	StatusCooldown
	StatusFailed
	StatusUnknownCommand
	StatusEmptyCommand
	StatusHandled
	StatusNoMatch
	StatusNoSubscription
)

var statusNames = [...]string{
	"ignored", "executed", "rejected", "cooldown", "failed",
	"unknown_command", "empty_command", "handled", "no_match", "no_subscription",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome reports what happened to one inbound event.
type Outcome struct {
	Status Status

	// Command is the resolved command name, or the subscription id for
	// correlation matches.
	Command string

	// Err carries the gate rejection or handler failure; nil on success.
	Err error

	// Remaining is set when Status is StatusCooldown.
	Remaining time.Duration

	// Fired counts the handler bodies invoked for the event.
	Fired int
}

// Options configures a State.
type Options struct {
	Policy    Policy
	Transport Transport
	Store     Store

	// Logger defaults to zerolog.Nop().
	Logger *zerolog.Logger

	// Clock defaults to SystemClock.
	Clock Clock

	// Session identifies this process in synthetic actor ids; a random uuid
	// is used when empty.
	Session string

	CaseInsensitive bool
	Middleware      []Middleware
	CategoryWeights map[string]int
}

// State owns every piece of process-wide dispatch state. Create one per
// process (or per test) and feed it events with Handle.
type State struct {
	registry    *Registry
	cooldowns   *CooldownTracker
	gate        *AuthorizationGate
	patterns    *PatternPool
	correlation *CorrelationPool
	lifecycle   *LifecyclePool

	policy atomic.Pointer[Policy]

	transport Transport
	store     Store
	log       zerolog.Logger
	clock     Clock
	session   string
}

// New builds a State from opts.
func New(opts Options) *State {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	session := opts.Session
	if session == "" {
		session = uuid.NewString()
	}

	regOpts := []RegistryOption{WithMiddleware(opts.Middleware...)}
	if opts.CaseInsensitive {
		regOpts = append(regOpts, WithCaseInsensitive())
	}
	if opts.CategoryWeights != nil {
		regOpts = append(regOpts, WithCategoryWeights(opts.CategoryWeights))
	}

	s := &State{
		registry:    NewRegistry(regOpts...),
		cooldowns:   NewCooldownTracker(clock),
		gate:        NewAuthorizationGate(opts.Transport, log),
		patterns:    NewPatternPool(),
		correlation: NewCorrelationPool(clock),
		lifecycle:   NewLifecyclePool(),
		transport:   opts.Transport,
		store:       opts.Store,
		log:         log,
		clock:       clock,
		session:     session,
	}
	p := opts.Policy
	if p.Prefix == "" {
		p.Prefix = DefaultPolicy().Prefix
	}
	s.policy.Store(p.clone())
	return s
}

func (s *State) Registry() *Registry { return s.registry }
func (s *State) Cooldowns() *CooldownTracker { return s.cooldowns }
func (s *State) Gate() *AuthorizationGate { return s.gate }
func (s *State) Patterns() *PatternPool { return s.patterns }
func (s *State) Correlations() *CorrelationPool { return s.correlation }
func (s *State) Lifecycle() *LifecyclePool { return s.lifecycle }
func (s *State) Session() string { return s.session }
func (s *State) Clock() Clock { return s.clock }
func (s *State) Logger() zerolog.Logger { return s.log }

// Policy returns the current policy snapshot. Callers must not modify it.
func (s *State) Policy() *Policy {
	return s.policy.Load()
}

// UpdatePolicy applies fn to a private copy of the policy and publishes it.
// Concurrent updates are serialized by retrying on conflict.
func (s *State) UpdatePolicy(fn func(p *Policy)) {
	for {
		cur := s.policy.Load()
		next := cur.clone()
		fn(next)
		if s.policy.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Send posts text to a thread through the transport.
func (s *State) Send(ctx context.Context, threadID, text string) (string, error) {
	return s.send(ctx, threadID, text, SendOptions{})
}

func (s *State) send(ctx context.Context, threadID, text string, opts SendOptions) (string, error) {
	if s.transport == nil {
		return "", ErrNoTransport
	}
	id, err := s.transport.Send(ctx, threadID, text, opts)
	if err != nil {
		s.log.Warn().Err(err).Str("thread", threadID).Msg("send failed")
		return "", fmt.Errorf("send to %s: %w", threadID, err)
	}
	return id, nil
}

// notify sends a best-effort notice quoting ev.
func (s *State) notify(ctx context.Context, ev *Event, text string) {
	if text == "" {
		return
	}
	_, _ = s.send(ctx, ev.ThreadID, text, SendOptions{QuoteID: ev.ID})
}

// persist runs one best-effort store call. Errors and panics are logged.
func (s *State) persist(ctx context.Context, op string, fn func(ctx context.Context, store Store) error) {
	if s.store == nil {
		return
	}
	err := safeInvoke("store", op, func() error { return fn(ctx, s.store) })
	if err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("persistence call failed")
	}
}

// touchUser registers first-seen users and bumps their counters.
func (s *State) touchUser(ctx context.Context, actor string, synthetic bool, ev *Event, command bool) {
	if synthetic {
		return
	}
	now := s.clock.Now()
	s.persist(ctx, "save_user", func(ctx context.Context, store Store) error {
		u, err := store.GetUser(ctx, actor)
		if err != nil {
			return fmt.Errorf("get user %s: %w", actor, err)
		}
		if u == nil {
			u = &st.User{ID: actor, FirstSeen: now}
			s.log.Info().Str("actor", actor).Msg("first seen user registered")
		}
		if ev.Sender.Name != "" {
			u.Name = ev.Sender.Name
		}
		u.LastSeen = now
		if command {
			u.CommandCount++
		} else {
			u.MessageCount++
		}
		return store.SaveUser(ctx, u)
	})
}

// Handle routes one inbound event and reports the outcome. It never panics
// and never returns handler errors to the caller except inside Outcome.
func (s *State) Handle(ctx context.Context, ev *Event) Outcome {
	if ev == nil {
		return Outcome{Status: StatusIgnored}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case ev.Kind.IsLifecycle():
		return s.routeLifecycle(ctx, ev)
	case ev.Kind == KindReaction:
		return s.routeReaction(ctx, ev)
	case ev.Kind == KindText || ev.Kind == KindMedia:
	default:
		return Outcome{Status: StatusIgnored}
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return Outcome{Status: StatusIgnored}
	}
	p := s.Policy()
	if prefix := p.PrefixFor(ev.ThreadID); strings.HasPrefix(text, prefix) {
		return s.dispatchCommand(ctx, p, ev, text, prefix)
	}
	if ev.IsReply() {
		if out := s.routeReply(ctx, ev); out.Status != StatusNoSubscription {
			return out
		}
	}
	return s.routePattern(ctx, p, ev)
}

func (s *State) newContext(ctx context.Context, p *Policy, ev *Event, actor string, synthetic bool) *Context {
	return &Context{
		Ctx:       ctx,
		Event:     ev,
		Actor:     actor,
		Synthetic: synthetic,
		ThreadID:  ev.ThreadID,
		IsGroup:   ev.IsGroup,
		Prefix:    p.PrefixFor(ev.ThreadID),
		State:     s,
	}
}
