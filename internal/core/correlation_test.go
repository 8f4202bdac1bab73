package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func replyEvent(actor, quoted, text string) *Event {
	ev := textEvent("T", actor, text)
	ev.QuotedID = quoted
	return ev
}

func reactionEvent(actor, target, symbol string) *Event {
	return &Event{ID: "r", ThreadID: "T", Kind: KindReaction, Sender: Sender{ChatID: actor}, ReactionTarget: target, Reaction: symbol}
}

func TestCorrelationRouter_OneTimeReplyFiresOnce(t *testing.T) {
	h := newHarness(DefaultPolicy())
	var n int
	_, err := h.state.Correlations().SubscribeReply(ReplySubscription{
		MessageID: "M1",
		OneTime:   true,
		Handler:   func(*Context, *ReplySubscription) error { n++; return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first := h.state.Handle(ctx, replyEvent("1", "M1", "forty two"))
	second := h.state.Handle(ctx, replyEvent("1", "M1", "forty two"))
	if n != 1 {
		t.Errorf("handler fired %d times, want 1", n)
	}
	if first.Status != StatusHandled {
		t.Errorf("first = %v", first.Status)
	}
	if second.Status != StatusNoMatch || second.Fired != 0 {
		t.Errorf("second = %+v, want plain no-op", second)
	}
	if h.state.Correlations().LenReplies() != 0 {
		t.Error("one-time reply subscription not removed")
	}
}

func TestCorrelationRouter_ReplyMissFallsThroughToPatterns(t *testing.T) {
	h := newHarness(DefaultPolicy())
	var fired bool
	_, _ = h.state.Patterns().SubscribeLiteral("thanks", false, func(*Context, []string) error {
		fired = true
		return nil
	})

	out := h.state.Handle(context.Background(), replyEvent("1", "unknown", "thanks"))
	if !fired || out.Status != StatusHandled {
		t.Errorf("outcome = %+v, fired = %v", out, fired)
	}
}

func TestCorrelationRouter_ResubscribeReplaces(t *testing.T) {
	pool := NewCorrelationPool(newFakeClock())
	var got string
	_, _ = pool.SubscribeReply(ReplySubscription{MessageID: "M", Handler: func(*Context, *ReplySubscription) error { got = "old"; return nil }})
	_, _ = pool.SubscribeReply(ReplySubscription{MessageID: "M", Handler: func(*Context, *ReplySubscription) error { got = "new"; return nil }})
	if pool.LenReplies() != 1 {
		t.Fatalf("LenReplies() = %d, want 1", pool.LenReplies())
	}
	sub := pool.claimReply("M")
	_ = sub.Handler(nil, sub)
	if got != "new" {
		t.Errorf("handler = %s, want new", got)
	}
}

func TestCorrelationRouter_ReactionTiers(t *testing.T) {
	tests := []struct {
		name   string
		keys   [][2]string // message, symbol
		symbol string
		want   string
	}{
		{"exact beats wildcard", [][2]string{{"M", "*"}, {"M", "👍"}, {"", "👍"}}, "👍", "M:👍"},
		{"message wildcard beats global", [][2]string{{"M", "*"}, {"", "👍"}}, "👍", "M:*"},
		{"global symbol beats global wildcard", [][2]string{{"", "*"}, {"", "👍"}}, "👍", ":👍"},
		{"global wildcard last", [][2]string{{"", "*"}, {"X", "👍"}}, "👍", ":*"},
		{"other symbol misses exact", [][2]string{{"M", "👍"}}, "👎", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(DefaultPolicy())
			var got string
			for _, k := range tt.keys {
				key := k[0] + ":" + k[1]
				_, err := h.state.Correlations().SubscribeReaction(ReactionSubscription{
					MessageID: k[0],
					Symbol:    k[1],
					Handler:   func(*Context, *ReactionSubscription) error { got = key; return nil },
				})
				if err != nil {
					t.Fatal(err)
				}
			}
			out := h.state.Handle(context.Background(), reactionEvent("1", "M", tt.symbol))
			if got != tt.want {
				t.Errorf("fired %q, want %q", got, tt.want)
			}
			if tt.want == "" && out.Status != StatusNoSubscription {
				t.Errorf("status = %v, want no subscription", out.Status)
			}
		})
	}
}

func TestCorrelationRouter_OneTimeReaction(t *testing.T) {
	h := newHarness(DefaultPolicy())
	var n int
	_, _ = h.state.Correlations().SubscribeReaction(ReactionSubscription{
		MessageID: "M", Symbol: "✅", OneTime: true,
		Handler: func(*Context, *ReactionSubscription) error { n++; return nil },
	})
	ctx := context.Background()
	h.state.Handle(ctx, reactionEvent("1", "M", "✅"))
	if out := h.state.Handle(ctx, reactionEvent("1", "M", "✅")); out.Status != StatusNoSubscription {
		t.Errorf("second = %v", out.Status)
	}
	if n != 1 || h.state.Correlations().LenReactions() != 0 {
		t.Errorf("fired %d times, %d left", n, h.state.Correlations().LenReactions())
	}
}

func TestCorrelationRouter_TTLExpires(t *testing.T) {
	h := newHarness(DefaultPolicy())
	pool := h.state.Correlations()
	_, _ = pool.SubscribeReply(ReplySubscription{MessageID: "M", TTL: time.Minute, Handler: func(*Context, *ReplySubscription) error { return nil }})
	_, _ = pool.SubscribeReaction(ReactionSubscription{MessageID: "M", TTL: time.Minute, Handler: func(*Context, *ReactionSubscription) error { return nil }})

	h.clock.Advance(59 * time.Second)
	if pool.LenReplies() != 1 || pool.LenReactions() != 1 {
		t.Fatal("subscriptions expired early")
	}
	h.clock.Advance(time.Second)
	if pool.LenReplies() != 0 || pool.LenReactions() != 0 {
		t.Errorf("after TTL: replies = %d, reactions = %d", pool.LenReplies(), pool.LenReactions())
	}
}

func TestCorrelationRouter_OwnerCommandHandlers(t *testing.T) {
	h := newHarness(DefaultPolicy())
	var got []string
	_ = h.state.Registry().Register(&Command{
		Name: "quiz",
		Run:  noop,
		OnReply: func(c *Context, sub *ReplySubscription) error {
			got = append(got, "reply:"+c.Command.Name+":"+sub.Data.(string))
			return nil
		},
		OnReaction: func(c *Context, sub *ReactionSubscription) error {
			got = append(got, "reaction:"+c.Event.Reaction)
			return nil
		},
	})
	_, _ = h.state.Correlations().SubscribeReply(ReplySubscription{MessageID: "Q", Owner: "quiz", Data: "q1"})
	_, _ = h.state.Correlations().SubscribeReaction(ReactionSubscription{MessageID: "Q", Owner: "quiz"})

	ctx := context.Background()
	h.state.Handle(ctx, replyEvent("1", "Q", "paris"))
	h.state.Handle(ctx, reactionEvent("1", "Q", "🎉"))
	if len(got) != 2 || got[0] != "reply:quiz:q1" || got[1] != "reaction:🎉" {
		t.Errorf("got = %v", got)
	}
}

func TestCorrelationRouter_BannedActorIgnored(t *testing.T) {
	p := DefaultPolicy()
	p.Banned = NewSet("666")
	h := newHarness(p)
	_, _ = h.state.Correlations().SubscribeReply(ReplySubscription{MessageID: "M", OneTime: true, Handler: func(*Context, *ReplySubscription) error {
		t.Error("banned reply reached handler")
		return nil
	}})

	out := h.state.Handle(context.Background(), replyEvent("666", "M", "hi"))
	if !errors.Is(out.Err, ErrBanned) {
		t.Errorf("err = %v, want banned", out.Err)
	}
	if h.state.Correlations().LenReplies() != 1 {
		t.Error("banned reply consumed the subscription")
	}
}

func TestCorrelationRouter_FailingReplyApologizes(t *testing.T) {
	h := newHarness(DefaultPolicy())
	_, _ = h.state.Correlations().SubscribeReply(ReplySubscription{MessageID: "M", Handler: func(*Context, *ReplySubscription) error {
		return errors.New("nope")
	}})
	out := h.state.Handle(context.Background(), replyEvent("1", "M", "hi"))
	if out.Status != StatusFailed || !errors.Is(out.Err, ErrHandlerFailure) {
		t.Errorf("outcome = %+v", out)
	}
	if len(h.transport.Sent()) != 1 {
		t.Errorf("sent = %d, want apology", len(h.transport.Sent()))
	}
}
