package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WildcardReaction matches any reaction symbol.
const WildcardReaction = "*"

// ReplySubscription fires when a message quoting MessageID arrives.
//
// Handler is preferred; when it is nil the OnReply capability of the command
// named by Owner is used.
type ReplySubscription struct {
	ID        string
	MessageID string
	Owner     string
	OneTime   bool

	// TTL removes the subscription after the given duration when positive.
	TTL time.Duration

	Handler ReplyFunc

	// Data is opaque state for the handler (e.g. the question that was asked).
	Data any
}

// ReactionSubscription fires when Symbol is added to MessageID. An empty
// MessageID makes it a global listener, and Symbol WildcardReaction (or
// empty) matches every symbol.
type ReactionSubscription struct {
	ID        string
	MessageID string
	Symbol    string
	Owner     string
	OneTime   bool
	TTL       time.Duration
	Handler   ReactionFunc
	Data      any
}

type reactionKey struct {
	message string
	symbol  string
}

type replyEntry struct {
	sub   *ReplySubscription
	timer Timer
}

type reactionEntry struct {
	sub   *ReactionSubscription
	timer Timer
}

// CorrelationPool holds reply and reaction subscriptions, at most one per key.
type CorrelationPool struct {
	mu        sync.Mutex
	clock     Clock
	replies   map[string]*replyEntry
	reactions map[reactionKey]*reactionEntry
}

func NewCorrelationPool(clock Clock) *CorrelationPool {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CorrelationPool{
		clock:     clock,
		replies:   make(map[string]*replyEntry),
		reactions: make(map[reactionKey]*reactionEntry),
	}
}

// SubscribeReply installs sub, replacing any subscription for the same message.
func (p *CorrelationPool) SubscribeReply(sub ReplySubscription) (string, error) {
	if sub.MessageID == "" {
		return "", fmt.Errorf("%w: reply subscription needs a message id", ErrInvalidPattern)
	}
	if sub.Handler == nil && sub.Owner == "" {
		return "", fmt.Errorf("%w: reply subscription needs a handler or owner", ErrInvalidPattern)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.replies[sub.MessageID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	e := &replyEntry{sub: &sub}
	if sub.TTL > 0 {
		key := sub.MessageID
		e.timer = p.clock.AfterFunc(sub.TTL, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if cur, ok := p.replies[key]; ok && cur == e {
				delete(p.replies, key)
			}
		})
	}
	p.replies[sub.MessageID] = e
	return sub.ID, nil
}

// SubscribeReaction installs sub, replacing any subscription for the same key.
func (p *CorrelationPool) SubscribeReaction(sub ReactionSubscription) (string, error) {
	if sub.Handler == nil && sub.Owner == "" {
		return "", fmt.Errorf("%w: reaction subscription needs a handler or owner", ErrInvalidPattern)
	}
	if sub.Symbol == "" {
		sub.Symbol = WildcardReaction
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	key := reactionKey{message: sub.MessageID, symbol: sub.Symbol}

	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.reactions[key]; ok && old.timer != nil {
		old.timer.Stop()
	}
	e := &reactionEntry{sub: &sub}
	if sub.TTL > 0 {
		e.timer = p.clock.AfterFunc(sub.TTL, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if cur, ok := p.reactions[key]; ok && cur == e {
				delete(p.reactions, key)
			}
		})
	}
	p.reactions[key] = e
	return sub.ID, nil
}

// UnsubscribeReply removes the reply subscription for messageID.
func (p *CorrelationPool) UnsubscribeReply(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.replies[messageID]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(p.replies, messageID)
	return true
}

// UnsubscribeReaction removes the reaction subscription for the key.
func (p *CorrelationPool) UnsubscribeReaction(messageID, symbol string) bool {
	if symbol == "" {
		symbol = WildcardReaction
	}
	key := reactionKey{message: messageID, symbol: symbol}

	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.reactions[key]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(p.reactions, key)
	return true
}

// LenReplies returns the number of live reply subscriptions.
func (p *CorrelationPool) LenReplies() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replies)
}

// LenReactions returns the number of live reaction subscriptions.
func (p *CorrelationPool) LenReactions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reactions)
}

func (p *CorrelationPool) claimReply(messageID string) *ReplySubscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.replies[messageID]
	if !ok {
		return nil
	}
	if e.sub.OneTime {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(p.replies, messageID)
	}
	return e.sub
}

// claimReaction looks up (message, symbol), then (message, *), then the
// global symbol listener, then the global wildcard.
func (p *CorrelationPool) claimReaction(messageID, symbol string) *ReactionSubscription {
	tiers := []reactionKey{
		{message: messageID, symbol: symbol},
		{message: messageID, symbol: WildcardReaction},
		{symbol: symbol},
		{symbol: WildcardReaction},
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range tiers {
		e, ok := p.reactions[k]
		if !ok {
			continue
		}
		if e.sub.OneTime {
			if e.timer != nil {
				e.timer.Stop()
			}
			delete(p.reactions, k)
		}
		return e.sub
	}
	return nil
}

// routeReply delivers a quoting message to the subscription of the quoted id.
func (s *State) routeReply(ctx context.Context, ev *Event) Outcome {
	p := s.Policy()
	actor, synthetic := ResolveActor(ev, s.session)
	if err := s.gate.Admit(p, actor, ev); err != nil {
		return Outcome{Status: StatusRejected, Err: err}
	}

	sub := s.correlation.claimReply(ev.QuotedID)
	if sub == nil {
		return Outcome{Status: StatusNoSubscription}
	}

	c := s.newContext(ctx, p, ev, actor, synthetic)
	c.Role = s.baseRole(p, actor)
	c.Args = strings.Fields(ev.Text)

	handler := sub.Handler
	if handler == nil {
		cmd, ok := s.registry.Resolve(sub.Owner)
		if !ok || cmd.OnReply == nil {
			s.log.Warn().Str("subscription", sub.ID).Str("owner", sub.Owner).Msg("reply owner has no reply handler")
			return Outcome{Status: StatusNoSubscription, Err: fmt.Errorf("%w: owner %q", ErrNoSubscription, sub.Owner)}
		}
		c.Command = cmd
		handler = cmd.OnReply
	}

	s.logMessage(ctx, ev, actor)
	err := safeInvoke(sub.ID, "reply", func() error { return handler(c, sub) })
	if err != nil {
		s.logHandlerError(err, "subscription", sub.ID)
		s.notify(ctx, ev, "Sorry, something went wrong while handling your reply.")
		return Outcome{Status: StatusFailed, Command: sub.ID, Err: err, Fired: 1}
	}
	return Outcome{Status: StatusHandled, Command: sub.ID, Fired: 1}
}

// routeReaction delivers a reaction to the first matching subscription tier.
// Reaction failures are logged only.
func (s *State) routeReaction(ctx context.Context, ev *Event) Outcome {
	if ev.Reaction == "" {
		return Outcome{Status: StatusIgnored}
	}
	p := s.Policy()
	actor, synthetic := ResolveActor(ev, s.session)
	if err := s.gate.Admit(p, actor, ev); err != nil {
		return Outcome{Status: StatusRejected, Err: err}
	}

	sub := s.correlation.claimReaction(ev.ReactionTarget, ev.Reaction)
	if sub == nil {
		return Outcome{Status: StatusNoSubscription}
	}

	c := s.newContext(ctx, p, ev, actor, synthetic)
	c.Role = s.baseRole(p, actor)

	handler := sub.Handler
	if handler == nil {
		cmd, ok := s.registry.Resolve(sub.Owner)
		if !ok || cmd.OnReaction == nil {
			s.log.Warn().Str("subscription", sub.ID).Str("owner", sub.Owner).Msg("reaction owner has no reaction handler")
			return Outcome{Status: StatusNoSubscription, Err: fmt.Errorf("%w: owner %q", ErrNoSubscription, sub.Owner)}
		}
		c.Command = cmd
		handler = cmd.OnReaction
	}

	err := safeInvoke(sub.ID, "reaction", func() error { return handler(c, sub) })
	if err != nil {
		s.logHandlerError(err, "subscription", sub.ID)
		return Outcome{Status: StatusFailed, Command: sub.ID, Err: err, Fired: 1}
	}
	return Outcome{Status: StatusHandled, Command: sub.ID, Fired: 1}
}
