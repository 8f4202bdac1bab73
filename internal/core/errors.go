package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Dispatch errors. Gate rejections are reported through Outcome.Err and are
// never returned to the transport loop.
var (
	ErrUnknownCommand   = errors.New("core: unknown command")
	ErrEmptyCommand     = errors.New("core: empty command")
	ErrBanned           = errors.New("core: actor is banned")
	ErrAdminOnly        = errors.New("core: admin-only mode is active")
	ErrNotWhitelisted   = errors.New("core: actor is not whitelisted")
	ErrInsufficientRole = errors.New("core: insufficient role")
	ErrCooldownActive   = errors.New("core: cooldown active")
	ErrHandlerFailure   = errors.New("core: handler failure")
	ErrDuplicateAlias   = errors.New("core: duplicate alias")
	ErrNoSubscription   = errors.New("core: no subscription")
	ErrInvalidCommand   = errors.New("core: invalid command")
	ErrInvalidPattern   = errors.New("core: invalid pattern")
)

// RoleError reports that the actor's role level is below the command threshold.
type RoleError struct {
	Command  string
	Required int
	Actual   int
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("command %q requires role %s (actor has %s)", e.Command, RoleName(e.Required), RoleName(e.Actual))
}

func (e *RoleError) Is(target error) bool { return target == ErrInsufficientRole }

// CooldownError reports a rate-limited invocation.
type CooldownError struct {
	Command   string
	Actor     string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("command %q on cooldown for %s (%ds left)", e.Command, e.Actor, Seconds(e.Remaining))
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// HandlerError wraps an error returned by, or a panic raised inside, a
// user-supplied handler body.
type HandlerError struct {
	// Source identifies the handler: a command name or a subscription id.
	Source string

	// Kind is the capability that failed: "run", "chat", "pattern", "reply",
	// "reaction" or a lifecycle kind.
	Kind string

	Err error

	// Panic holds the recovered value; Stack is only ever logged.
	Panic any
	Stack string
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s handler %q panicked: %v", e.Kind, e.Source, e.Panic)
	}
	return fmt.Sprintf("%s handler %q failed: %v", e.Kind, e.Source, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Is(target error) bool { return target == ErrHandlerFailure }

// DuplicateAliasError is returned by Registry.Register when a name or alias is
// already claimed by a different command.
type DuplicateAliasError struct {
	Alias    string
	Command  string
	Existing string
}

func (e *DuplicateAliasError) Error() string {
	return fmt.Sprintf("alias %q of command %q is already used by %q", e.Alias, e.Command, e.Existing)
}

func (e *DuplicateAliasError) Is(target error) bool { return target == ErrDuplicateAlias }

// RegistrationErrors collects per-command failures from a bulk load.
type RegistrationErrors []error

func (r RegistrationErrors) Error() string {
	parts := make([]string, 0, len(r))
	for _, err := range r {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}

func (r RegistrationErrors) Unwrap() []error { return r }

// Seconds rounds a duration up to whole seconds for user-facing notices.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
