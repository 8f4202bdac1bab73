package bot

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/keshon/chatdispatch/internal/config"
	"github.com/keshon/chatdispatch/internal/core"
)

type nopTransport struct{ sent []string }

func (n *nopTransport) Send(_ context.Context, _, text string, _ core.SendOptions) (string, error) {
	n.sent = append(n.sent, text)
	return "x", nil
}
func (n *nopTransport) ThreadInfo(context.Context, string) (*core.ThreadInfo, error) {
	return &core.ThreadInfo{}, nil
}
func (n *nopTransport) AcceptInvite(context.Context, *core.Event) error { return core.ErrUnsupported }
func (n *nopTransport) RejectCall(context.Context, *core.Event) error   { return core.ErrUnsupported }

func TestNewState_AppliesConfig(t *testing.T) {
	cfg, err := config.Load(map[string]string{
		"COMMAND_PREFIX":            ".",
		"CASE_INSENSITIVE_COMMANDS": "true",
	})
	if err != nil {
		t.Fatal(err)
	}
	tr := &nopTransport{}
	st, err := NewState(cfg, tr, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.Registry().Resolve("help"); !ok {
		t.Error("built-in commands missing")
	}

	out := st.Handle(context.Background(), &core.Event{
		ID: "1", ThreadID: "T", Kind: core.KindText, Text: ".PING",
		Sender: core.Sender{ChatID: "7"},
	})
	if out.Status != core.StatusExecuted || len(tr.sent) != 1 {
		t.Errorf("outcome = %+v, sent = %v", out, tr.sent)
	}
}
