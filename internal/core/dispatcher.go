package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

// dispatchCommand runs prefixed text through
// resolve -> authorize -> rate limit -> execute.
//
// Banned actors get no hint of any kind, not even for unknown commands.
func (s *State) dispatchCommand(ctx context.Context, p *Policy, ev *Event, text, prefix string) Outcome {
	actor, synthetic := ResolveActor(ev, s.session)
	banned := p.Banned.Has(actor)

	body := strings.TrimSpace(text[len(prefix):])
	if body == "" {
		if !banned {
			s.notify(ctx, ev, fmt.Sprintf("Type %shelp to see the available commands.", prefix))
		}
		return Outcome{Status: StatusEmptyCommand, Err: ErrEmptyCommand}
	}

	tokens := strings.Fields(body)
	name := tokens[0]
	cmd, ok := s.registry.Resolve(name)
	if !ok || cmd.Run == nil {
		if !banned {
			s.notify(ctx, ev, fmt.Sprintf("Unknown command %s%s. Type %shelp for the list.", prefix, name, prefix))
		}
		return Outcome{Status: StatusUnknownCommand, Err: fmt.Errorf("%w: %s", ErrUnknownCommand, name)}
	}

	log := s.log.With().Str("command", cmd.Name).Str("thread", ev.ThreadID).Str("actor", actor).Logger()

	role, err := s.gate.Authorize(ctx, p, actor, ev, cmd)
	if err != nil {
		log.Debug().Err(err).Msg("command rejected")
		s.notify(ctx, ev, rejectionNotice(err, prefix, cmd.Name))
		return Outcome{Status: StatusRejected, Command: cmd.Name, Err: err}
	}

	if left, ok := s.cooldowns.Acquire(cmd.Name, actor, cmd.cooldown(p.DefaultCooldown)); !ok {
		cerr := &CooldownError{Command: cmd.Name, Actor: actor, Remaining: left}
		log.Debug().Dur("remaining", left).Msg("command on cooldown")
		s.notify(ctx, ev, rejectionNotice(cerr, prefix, cmd.Name))
		return Outcome{Status: StatusCooldown, Command: cmd.Name, Err: cerr, Remaining: left}
	}

	c := s.newContext(ctx, p, ev, actor, synthetic)
	c.Role = role
	c.Args = tokens[1:]
	c.Command = cmd

	s.touchUser(ctx, actor, synthetic, ev, true)

	err = safeInvoke(cmd.Name, "run", func() error { return cmd.Run(c) })
	s.logUsage(ctx, ev, actor, cmd.Name, c.Args)

	if err != nil {
		var herr *HandlerError
		if errors.As(err, &herr) && herr.Panic != nil {
			log.Error().Interface("panic", herr.Panic).Str("stack", herr.Stack).Msg("command panicked")
		} else {
			log.Error().Err(err).Msg("command failed")
		}
		s.notify(ctx, ev, fmt.Sprintf("Sorry, something went wrong while running %s%s.", prefix, cmd.Name))
		return Outcome{Status: StatusFailed, Command: cmd.Name, Err: err, Fired: 1}
	}
	return Outcome{Status: StatusExecuted, Command: cmd.Name, Fired: 1}
}

func (s *State) logUsage(ctx context.Context, ev *Event, actor, command string, args []string) {
	rec := st.CommandUsage{
		ThreadID: ev.ThreadID,
		UserID:   actor,
		Username: ev.Sender.Name,
		Command:  command,
		Args:     strings.Join(args, " "),
		Datetime: s.clock.Now(),
	}
	s.persist(ctx, "log_command_usage", func(ctx context.Context, store Store) error {
		return store.LogCommandUsage(ctx, rec)
	})
}
