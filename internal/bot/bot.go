// Package bot assembles the dispatch engine the way every binary runs it.
package bot

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/keshon/chatdispatch/internal/commands/builtin"
	"github.com/keshon/chatdispatch/internal/config"
	"github.com/keshon/chatdispatch/internal/core"
)

// NewState builds the engine from cfg with the built-in commands installed.
// Every direct command invocation is logged.
func NewState(cfg *config.Config, transport core.Transport, store core.Store, log zerolog.Logger) (*core.State, error) {
	st := core.New(core.Options{
		Policy:          cfg.Policy(),
		Transport:       transport,
		Store:           store,
		Logger:          &log,
		CaseInsensitive: cfg.CaseInsensitive,
		Middleware:      []core.Middleware{core.WithCommandLogger()},
		CategoryWeights: config.CategoryWeights,
	})
	if err := builtin.Register(st); err != nil {
		return nil, fmt.Errorf("register built-in commands: %w", err)
	}
	log.Info().
		Int("commands", st.Registry().Len()).
		Str("prefix", cfg.CommandPrefix).
		Str("session", st.Session()).
		Msg("dispatch engine ready")
	return st, nil
}
