package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

// PatternSubscription is an ad-hoc free-text listener. Exactly one of
// Literal (case-insensitive equality with the whole message) or Regexp must
// be set.
type PatternSubscription struct {
	ID      string
	Owner   string
	Literal string
	Regexp  *regexp.Regexp
	OneTime bool
	Handler PatternFunc
}

func (s *PatternSubscription) match(text string) []string {
	if s.Regexp != nil {
		return s.Regexp.FindStringSubmatch(text)
	}
	if strings.EqualFold(strings.TrimSpace(text), s.Literal) {
		return []string{text}
	}
	return nil
}

// PatternPool holds ad-hoc pattern subscriptions in subscription order.
type PatternPool struct {
	mu   sync.Mutex
	subs []*PatternSubscription
}

func NewPatternPool() *PatternPool {
	return &PatternPool{}
}

// Subscribe adds sub and returns its id (generated when empty).
func (p *PatternPool) Subscribe(sub PatternSubscription) (string, error) {
	if sub.Handler == nil {
		return "", fmt.Errorf("%w: nil handler", ErrInvalidPattern)
	}
	if (sub.Regexp == nil) == (strings.TrimSpace(sub.Literal) == "") {
		return "", fmt.Errorf("%w: set exactly one of literal or regexp", ErrInvalidPattern)
	}
	sub.Literal = strings.TrimSpace(sub.Literal)
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.subs {
		if cur.ID == sub.ID {
			p.subs[i] = &sub
			return sub.ID, nil
		}
	}
	p.subs = append(p.subs, &sub)
	return sub.ID, nil
}

// SubscribeRegexp compiles expr and subscribes fn to it.
func (p *PatternPool) SubscribeRegexp(expr string, oneTime bool, fn PatternFunc) (string, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return p.Subscribe(PatternSubscription{Regexp: re, OneTime: oneTime, Handler: fn})
}

// SubscribeLiteral subscribes fn to messages equal to text, ignoring case.
func (p *PatternPool) SubscribeLiteral(text string, oneTime bool, fn PatternFunc) (string, error) {
	return p.Subscribe(PatternSubscription{Literal: text, OneTime: oneTime, Handler: fn})
}

// Unsubscribe removes a subscription by id.
func (p *PatternPool) Unsubscribe(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.subs {
		if cur.ID == id {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of live subscriptions.
func (p *PatternPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

type patternHit struct {
	sub   *PatternSubscription
	match []string
}

// claim returns every subscription matching text. One-time matches are
// removed under the same lock, so each fires at most once.
func (p *PatternPool) claim(text string) []patternHit {
	p.mu.Lock()
	defer p.mu.Unlock()

	var hits []patternHit
	kept := p.subs[:0]
	for _, sub := range p.subs {
		m := sub.match(text)
		if m != nil {
			hits = append(hits, patternHit{sub: sub, match: m})
			if sub.OneTime {
				continue
			}
		}
		kept = append(kept, sub)
	}
	for i := len(kept); i < len(p.subs); i++ {
		p.subs[i] = nil
	}
	p.subs = kept
	return hits
}

// routePattern delivers non-prefixed text to command free-text listeners,
// first handled wins, then to every matching ad-hoc subscription.
func (s *State) routePattern(ctx context.Context, p *Policy, ev *Event) Outcome {
	actor, synthetic := ResolveActor(ev, s.session)
	if err := s.gate.Admit(p, actor, ev); err != nil {
		return Outcome{Status: StatusRejected, Err: err}
	}

	s.logMessage(ctx, ev, actor)
	s.touchUser(ctx, actor, synthetic, ev, false)

	text := strings.TrimSpace(ev.Text)
	out := Outcome{Status: StatusNoMatch}

	for _, cmd := range s.registry.Commands() {
		if cmd.OnChat == nil {
			continue
		}
		role, err := s.gate.CheckRole(ctx, p, actor, ev, cmd)
		if err != nil {
			continue
		}
		c := s.newContext(ctx, p, ev, actor, synthetic)
		c.Role = role
		c.Command = cmd
		c.Args = strings.Fields(text)

		handled, err := safeChat(cmd.Name, cmd.OnChat, c)
		out.Fired++
		if err != nil {
			s.logHandlerError(err, "command", cmd.Name)
			if out.Err == nil {
				out.Err = err
			}
			continue
		}
		if handled {
			out.Status = StatusHandled
			out.Command = cmd.Name
			return out
		}
	}

	hits := s.patterns.claim(text)
	for _, h := range hits {
		c := s.newContext(ctx, p, ev, actor, synthetic)
		c.Role = s.baseRole(p, actor)
		c.Args = strings.Fields(text)
		sub := h.sub
		err := safeInvoke(sub.ID, "pattern", func() error { return sub.Handler(c, h.match) })
		out.Fired++
		if err != nil {
			s.logHandlerError(err, "subscription", sub.ID)
			if out.Err == nil {
				out.Err = err
			}
		}
	}
	if len(hits) > 0 {
		out.Status = StatusHandled
	}
	return out
}

func (s *State) baseRole(p *Policy, actor string) int {
	if p.IsAdmin(actor) {
		return RoleBotAdmin
	}
	return RoleUser
}

func (s *State) logMessage(ctx context.Context, ev *Event, actor string) {
	rec := st.MessageRecord{
		ID:       ev.ID,
		ThreadID: ev.ThreadID,
		UserID:   actor,
		Kind:     string(ev.Kind),
		Length:   len(ev.Text),
		Datetime: s.clock.Now(),
	}
	s.persist(ctx, "log_message", func(ctx context.Context, store Store) error {
		return store.LogMessage(ctx, rec)
	})
}

// logHandlerError logs a contained listener failure; field names the source
// type ("command" or "subscription").
func (s *State) logHandlerError(err error, field, source string) {
	e := s.log.Error().Err(err).Str(field, source)
	if herr, ok := err.(*HandlerError); ok && herr.Panic != nil {
		e = e.Str("stack", herr.Stack)
	}
	e.Msg("listener failed")
}
