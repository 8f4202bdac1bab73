package core

import (
	"context"
	"errors"
	"testing"
)

func joinEvent(thread string, participants ...string) *Event {
	return &Event{ID: "j", ThreadID: thread, IsGroup: true, Kind: KindMembershipJoined, Participants: participants}
}

func TestLifecycleRouter_ScopeFiltersThreads(t *testing.T) {
	h := newHarness(DefaultPolicy())
	pool := h.state.Lifecycle()
	fired := map[string]int{}
	_, _ = pool.Subscribe(KindMembershipJoined, "scoped", func(*Context) error { fired["scoped"]++; return nil })
	_, _ = pool.Subscribe(KindMembershipJoined, "everywhere", func(*Context) error { fired["everywhere"]++; return nil })
	_, _ = pool.Subscribe(KindMembershipJoined, "inactive", func(*Context) error { fired["inactive"]++; return nil })
	pool.Activate("scoped", "T1")
	pool.ActivateAll("everywhere")

	ctx := context.Background()
	h.state.Handle(ctx, joinEvent("T1", "u1"))
	h.state.Handle(ctx, joinEvent("T2", "u2"))

	if fired["scoped"] != 1 {
		t.Errorf("scoped fired %d times, want 1", fired["scoped"])
	}
	if fired["everywhere"] != 2 {
		t.Errorf("wildcard fired %d times, want 2", fired["everywhere"])
	}
	if fired["inactive"] != 0 {
		t.Errorf("unscoped subscription fired %d times", fired["inactive"])
	}
}

func TestLifecycleRouter_Deactivate(t *testing.T) {
	pool := NewLifecyclePool()
	pool.Activate("x", "T1", "T2")
	pool.Deactivate("x", "T1")
	if pool.Active("x", "T1") || !pool.Active("x", "T2") {
		t.Error("partial Deactivate wrong")
	}
	pool.Deactivate("x")
	if pool.Active("x", "T2") {
		t.Error("full Deactivate left scope")
	}
}

func TestLifecycleRouter_FailureDoesNotStopOthers(t *testing.T) {
	h := newHarness(DefaultPolicy())
	pool := h.state.Lifecycle()
	var ok bool
	_, _ = pool.Subscribe(KindMembershipLeft, "bad", func(*Context) error { panic("x") })
	_, _ = pool.Subscribe(KindMembershipLeft, "good", func(*Context) error { ok = true; return nil })
	pool.ActivateAll("bad")
	pool.ActivateAll("good")

	out := h.state.Handle(context.Background(), &Event{ThreadID: "T", Kind: KindMembershipLeft})
	if !ok || out.Fired != 2 || !errors.Is(out.Err, ErrHandlerFailure) {
		t.Errorf("outcome = %+v, good ran = %v", out, ok)
	}
}

func TestLifecycleRouter_WelcomeTemplate(t *testing.T) {
	p := DefaultPolicy()
	p.Welcome = Notice{Enabled: true, Template: "Hi {names}, welcome to {thread} ({count})"}
	h := newHarness(p)
	h.transport.threads["G"] = &ThreadInfo{ID: "G", Name: "Gophers", SelfID: "bot@s.whatsapp.net"}

	out := h.state.Handle(context.Background(), joinEvent("G", "ann", "bot", "bob"))
	if out.Status != StatusHandled {
		t.Errorf("status = %v", out.Status)
	}
	if got, want := h.transport.Last().Text, "Hi ann, bob, welcome to Gophers (2)"; got != want {
		t.Errorf("welcome = %q, want %q", got, want)
	}

	h.state.Handle(context.Background(), joinEvent("G", "bot"))
	if n := len(h.transport.Sent()); n != 1 {
		t.Errorf("bot's own join produced a notice (%d sends)", n)
	}
}

func TestLifecycleRouter_FarewellDisabledByDefault(t *testing.T) {
	h := newHarness(DefaultPolicy())
	out := h.state.Handle(context.Background(), &Event{ThreadID: "G", Kind: KindMembershipLeft, Participants: []string{"a"}})
	if out.Status != StatusNoMatch || len(h.transport.Sent()) != 0 {
		t.Errorf("outcome = %+v, sent = %d", out, len(h.transport.Sent()))
	}
}

func TestLifecycleRouter_BypassesBanList(t *testing.T) {
	p := DefaultPolicy()
	p.Banned = NewSet("666")
	p.Welcome = Notice{Enabled: true, Template: "hi {names}"}
	h := newHarness(p)
	ev := joinEvent("G", "666")
	ev.Sender = Sender{ParticipantID: "666"}

	if out := h.state.Handle(context.Background(), ev); out.Status != StatusHandled {
		t.Errorf("status = %v", out.Status)
	}
}

func TestLifecycleRouter_CallsAndInvites(t *testing.T) {
	p := DefaultPolicy()
	p.AutoRejectCalls = true
	p.AutoAcceptInvites = true
	p.InvitesAdminOnly = true
	p.Admins = NewSet("999")
	h := newHarness(p)
	ctx := context.Background()

	h.state.Handle(ctx, &Event{ThreadID: "T", Kind: KindCallIncoming, CallerID: "1", CallID: "c1"})
	if h.transport.rejected != 1 {
		t.Errorf("rejected = %d, want 1", h.transport.rejected)
	}

	h.state.Handle(ctx, &Event{ThreadID: "T", Kind: KindInviteReceived, InviterID: "123"})
	if h.transport.accepted != 0 {
		t.Error("accepted invite from non-admin")
	}
	h.state.Handle(ctx, &Event{ThreadID: "T", Kind: KindInviteReceived, InviterID: "999@s.whatsapp.net"})
	if h.transport.accepted != 1 {
		t.Errorf("accepted = %d, want 1", h.transport.accepted)
	}
}

func TestLifecycleRouter_BuiltinsRunWithoutSubscriptions(t *testing.T) {
	p := DefaultPolicy()
	p.AutoRejectCalls = true
	h := newHarness(p)
	out := h.state.Handle(context.Background(), &Event{ThreadID: "T", Kind: KindCallIncoming})
	if out.Status != StatusHandled || out.Fired != 0 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestLifecyclePool_SubscribeValidation(t *testing.T) {
	pool := NewLifecyclePool()
	if _, err := pool.Subscribe(KindText, "x", func(*Context) error { return nil }); !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("non-lifecycle kind: err = %v", err)
	}
	id, err := pool.Subscribe(KindContactUpdated, "x", func(*Context) error { return nil })
	if err != nil || pool.Len(KindContactUpdated) != 1 {
		t.Fatalf("Subscribe() = %q, %v", id, err)
	}
	if !pool.Unsubscribe(id) || pool.Len(KindContactUpdated) != 0 {
		t.Error("Unsubscribe() failed")
	}
}
