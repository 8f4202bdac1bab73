package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// AuthorizationGate evaluates the ban list, admin-only mode, whitelist mode
// and command role thresholds. It has no side effects; the only outside call
// is a read-only admin roster lookup for group threads.
type AuthorizationGate struct {
	transport Transport
	log       zerolog.Logger
}

// NewAuthorizationGate returns a gate. transport may be nil, in which case
// nobody is ever a group admin.
func NewAuthorizationGate(transport Transport, log zerolog.Logger) *AuthorizationGate {
	return &AuthorizationGate{transport: transport, log: log}
}

// Admit runs the actor-level checks in order: banned, admin-only, whitelist.
func (g *AuthorizationGate) Admit(p *Policy, actor string, ev *Event) error {
	if p.Banned.Has(actor) {
		return ErrBanned
	}
	if p.AdminOnly && !p.IsAdmin(actor) && !ev.FromMe {
		return ErrAdminOnly
	}
	if p.Whitelist && !ev.FromMe && !p.IsAdmin(actor) &&
		!p.Whitelisted.Has(actor) && !p.WhitelistedThreads.Has(ev.ThreadID) {
		return ErrNotWhitelisted
	}
	return nil
}

// RoleLevel computes the actor's role: bot admins from the allow-list, group
// admins from the transport roster of a group thread, everyone else 0.
func (g *AuthorizationGate) RoleLevel(ctx context.Context, p *Policy, actor string, ev *Event) int {
	if p.IsAdmin(actor) {
		return RoleBotAdmin
	}
	if !ev.IsGroup || g.transport == nil {
		return RoleUser
	}
	info, err := g.transport.ThreadInfo(ctx, ev.ThreadID)
	if err != nil {
		g.log.Warn().Err(err).Str("thread", ev.ThreadID).Msg("admin roster lookup failed")
		return RoleUser
	}
	for _, a := range info.Admins {
		if NormalizeID(a) == actor {
			return RoleGroupAdmin
		}
	}
	return RoleUser
}

// CheckRole rejects with *RoleError when the actor is below the command's
// threshold. Commands with role 0 skip the roster lookup entirely.
func (g *AuthorizationGate) CheckRole(ctx context.Context, p *Policy, actor string, ev *Event, cmd *Command) (int, error) {
	if cmd.Role <= RoleUser {
		if p.IsAdmin(actor) {
			return RoleBotAdmin, nil
		}
		return RoleUser, nil
	}
	level := g.RoleLevel(ctx, p, actor, ev)
	if level < cmd.Role {
		return level, &RoleError{Command: cmd.Name, Required: cmd.Role, Actual: level}
	}
	return level, nil
}

// Authorize runs Admit and CheckRole in order for a command invocation.
func (g *AuthorizationGate) Authorize(ctx context.Context, p *Policy, actor string, ev *Event, cmd *Command) (int, error) {
	if err := g.Admit(p, actor, ev); err != nil {
		return RoleUser, err
	}
	return g.CheckRole(ctx, p, actor, ev, cmd)
}

// rejectionNotice returns the user-visible text for a gate rejection, or ""
// when the rejection is silent.
func rejectionNotice(err error, prefix, command string) string {
	switch e := err.(type) {
	case *RoleError:
		return fmt.Sprintf("Only a %s can use %s%s.", RoleName(e.Required), prefix, command)
	case *CooldownError:
		return fmt.Sprintf("Please wait %ds before using %s%s again.", Seconds(e.Remaining), prefix, command)
	}
	switch err {
	case ErrAdminOnly:
		return "The bot is in admin-only mode. Only bot administrators can use commands right now."
	case ErrNotWhitelisted:
		return "You are not allowed to use this bot."
	case ErrBanned:
		return ""
	}
	return ""
}
