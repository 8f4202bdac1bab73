package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// AllThreads is the universal activation scope.
const AllThreads = "*"

// LifecycleSubscription is a named listener for one lifecycle kind. It only
// fires in threads where its Name has been activated.
type LifecycleSubscription struct {
	ID      string
	Name    string
	Kind    Kind
	Handler LifecycleFunc
}

type activationScope struct {
	all     bool
	threads map[string]struct{}
}

// LifecyclePool holds lifecycle subscriptions by kind and the activation
// scope of every subscription name.
type LifecyclePool struct {
	mu     sync.RWMutex
	byKind map[Kind][]*LifecycleSubscription
	scopes map[string]*activationScope
}

func NewLifecyclePool() *LifecyclePool {
	return &LifecyclePool{
		byKind: make(map[Kind][]*LifecycleSubscription),
		scopes: make(map[string]*activationScope),
	}
}

// Subscribe adds a listener for kind under name. Several subscriptions may
// share a kind; a name may also be shared, in which case they share a scope.
func (p *LifecyclePool) Subscribe(kind Kind, name string, fn LifecycleFunc) (string, error) {
	if !kind.IsLifecycle() {
		return "", fmt.Errorf("%w: %q is not a lifecycle kind", ErrInvalidPattern, kind)
	}
	if name == "" || fn == nil {
		return "", fmt.Errorf("%w: lifecycle subscription needs a name and handler", ErrInvalidPattern)
	}
	sub := &LifecycleSubscription{ID: uuid.NewString(), Name: name, Kind: kind, Handler: fn}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byKind[kind] = append(p.byKind[kind], sub)
	return sub.ID, nil
}

// Unsubscribe removes a subscription by id.
func (p *LifecyclePool) Unsubscribe(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for kind, subs := range p.byKind {
		for i, s := range subs {
			if s.ID == id {
				p.byKind[kind] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Activate allows name to fire in the given threads. The thread id AllThreads
// activates it everywhere.
func (p *LifecyclePool) Activate(name string, threadIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sc, ok := p.scopes[name]
	if !ok {
		sc = &activationScope{threads: make(map[string]struct{})}
		p.scopes[name] = sc
	}
	for _, id := range threadIDs {
		if id == AllThreads {
			sc.all = true
			continue
		}
		sc.threads[id] = struct{}{}
	}
}

// ActivateAll allows name to fire in every thread.
func (p *LifecyclePool) ActivateAll(name string) {
	p.Activate(name, AllThreads)
}

// Deactivate removes threads from the scope of name. With no threads the
// scope is dropped entirely and the subscriptions stop firing anywhere.
func (p *LifecyclePool) Deactivate(name string, threadIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sc, ok := p.scopes[name]
	if !ok {
		return
	}
	if len(threadIDs) == 0 {
		delete(p.scopes, name)
		return
	}
	for _, id := range threadIDs {
		if id == AllThreads {
			sc.all = false
			continue
		}
		delete(sc.threads, id)
	}
}

// Active reports whether name may fire in threadID.
func (p *LifecyclePool) Active(name, threadID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sc, ok := p.scopes[name]
	if !ok {
		return false
	}
	if sc.all {
		return true
	}
	_, ok = sc.threads[threadID]
	return ok
}

// Len returns the number of subscriptions for kind.
func (p *LifecyclePool) Len(kind Kind) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byKind[kind])
}

func (p *LifecyclePool) subscriptions(kind Kind) []*LifecycleSubscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*LifecycleSubscription(nil), p.byKind[kind]...)
}

// routeLifecycle fires every in-scope subscription for the event kind, then
// the configured built-ins. Lifecycle events describe third parties and are
// not subject to the ban list.
func (s *State) routeLifecycle(ctx context.Context, ev *Event) Outcome {
	p := s.Policy()
	actor, synthetic := ResolveActor(ev, s.session)
	out := Outcome{Status: StatusNoMatch}

	for _, sub := range s.lifecycle.subscriptions(ev.Kind) {
		if !s.lifecycle.Active(sub.Name, ev.ThreadID) {
			continue
		}
		c := s.newContext(ctx, p, ev, actor, synthetic)
		c.Role = s.baseRole(p, actor)
		fn := sub.Handler
		err := safeInvoke(sub.Name, string(ev.Kind), func() error { return fn(c) })
		out.Fired++
		if err != nil {
			s.logHandlerError(err, "subscription", sub.Name)
			if out.Err == nil {
				out.Err = err
			}
		}
	}

	if s.runBuiltins(ctx, p, ev) || out.Fired > 0 {
		out.Status = StatusHandled
	}
	return out
}

// runBuiltins applies the configured lifecycle side effects and reports
// whether any of them acted.
func (s *State) runBuiltins(ctx context.Context, p *Policy, ev *Event) bool {
	log := s.log.With().Str("thread", ev.ThreadID).Str("kind", string(ev.Kind)).Logger()

	switch ev.Kind {
	case KindMembershipJoined:
		if p.Welcome.Enabled {
			return s.membershipNotice(ctx, ev, p.Welcome.Template)
		}
	case KindMembershipLeft:
		if p.Farewell.Enabled {
			return s.membershipNotice(ctx, ev, p.Farewell.Template)
		}
	case KindCallIncoming:
		if !p.AutoRejectCalls || s.transport == nil {
			return false
		}
		if err := s.transport.RejectCall(ctx, ev); err != nil {
			if errors.Is(err, ErrUnsupported) {
				log.Debug().Msg("call rejection not supported by transport")
			} else {
				log.Warn().Err(err).Str("caller", ev.CallerID).Msg("call rejection failed")
			}
			return false
		}
		log.Info().Str("caller", ev.CallerID).Msg("incoming call rejected")
		return true
	case KindInviteReceived:
		if !p.AutoAcceptInvites || s.transport == nil {
			return false
		}
		if p.InvitesAdminOnly && !p.IsAdmin(ev.InviterID) {
			log.Info().Str("inviter", ev.InviterID).Msg("invite ignored, inviter is not an admin")
			return false
		}
		if err := s.transport.AcceptInvite(ctx, ev); err != nil {
			if errors.Is(err, ErrUnsupported) {
				log.Debug().Msg("invite acceptance not supported by transport")
			} else {
				log.Warn().Err(err).Str("inviter", ev.InviterID).Msg("invite acceptance failed")
			}
			return false
		}
		log.Info().Str("inviter", ev.InviterID).Msg("invite accepted")
		return true
	case KindContactUpdated:
		s.refreshContact(ctx, ev)
	}
	return false
}

// membershipNotice renders a welcome or farewell template. The bot's own
// membership changes are left out; nothing is sent when nobody is left.
func (s *State) membershipNotice(ctx context.Context, ev *Event, template string) bool {
	if ev.FromMe || strings.TrimSpace(template) == "" {
		return false
	}

	threadName := ev.ThreadID
	selfID := ""
	if s.transport != nil {
		if info, err := s.transport.ThreadInfo(ctx, ev.ThreadID); err == nil && info != nil {
			if info.Name != "" {
				threadName = info.Name
			}
			selfID = NormalizeID(info.SelfID)
		} else if err != nil {
			s.log.Debug().Err(err).Str("thread", ev.ThreadID).Msg("thread info lookup failed")
		}
	}

	names := make([]string, 0, len(ev.Participants))
	for _, raw := range ev.Participants {
		if selfID != "" && NormalizeID(raw) == selfID {
			continue
		}
		names = append(names, raw)
	}
	if len(names) == 0 {
		return false
	}

	text := strings.NewReplacer(
		"{names}", strings.Join(names, ", "),
		"{thread}", threadName,
		"{count}", strconv.Itoa(len(names)),
	).Replace(template)

	if _, err := s.send(ctx, ev.ThreadID, text, SendOptions{}); err != nil {
		return false
	}
	return true
}

// refreshContact stores the updated display name of a known user.
func (s *State) refreshContact(ctx context.Context, ev *Event) {
	actor, synthetic := ResolveActor(ev, s.session)
	if synthetic || ev.Sender.Name == "" {
		return
	}
	s.persist(ctx, "refresh_contact", func(ctx context.Context, store Store) error {
		u, err := store.GetUser(ctx, actor)
		if err != nil || u == nil {
			return err
		}
		u.Name = ev.Sender.Name
		return store.SaveUser(ctx, u)
	})
}
