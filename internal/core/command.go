package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Role levels. Anything at or above RoleBotAdmin is a bot administrator.
const (
	RoleUser       = 0
	RoleGroupAdmin = 1
	RoleBotAdmin   = 2
)

// RoleName returns the user-facing name of a role level.
func RoleName(level int) string {
	switch {
	case level <= RoleUser:
		return "user"
	case level == RoleGroupAdmin:
		return "group admin"
	default:
		return "bot admin"
	}
}

// Cooldown values with special meaning on Command.Cooldown.
const (
	// DefaultCooldown defers to the policy's global default.
	DefaultCooldown time.Duration = 0

	// NoCooldown disables rate limiting for the command.
	NoCooldown time.Duration = -1
)

// Handler bodies. Each optional field of Command is one capability; routers
// check presence before invoking.
type (
	RunFunc       func(c *Context) error
	ChatFunc      func(c *Context) (handled bool, err error)
	ReplyFunc     func(c *Context, sub *ReplySubscription) error
	ReactionFunc  func(c *Context, sub *ReactionSubscription) error
	PatternFunc   func(c *Context, match []string) error
	LifecycleFunc func(c *Context) error
)

// Middleware wraps a command's direct handler. The first middleware in a list
// is the outermost.
type Middleware func(next RunFunc) RunFunc

// Command is an installed plugin definition. It is copied on registration and
// must not be mutated afterwards; reloading replaces the whole entry.
type Command struct {
	Name        string
	Aliases     []string
	Category    string
	Description string
	Usage       string

	// Role is the minimum role level required to run the command.
	Role int

	// Cooldown between invocations by the same actor. DefaultCooldown uses the
	// policy default, NoCooldown (or any negative value) disables it.
	Cooldown time.Duration

	Run        RunFunc
	OnChat     ChatFunc
	OnReply    ReplyFunc
	OnReaction ReactionFunc
}

// cooldown resolves the effective cooldown for the command.
func (c *Command) cooldown(def time.Duration) time.Duration {
	switch {
	case c.Cooldown < 0:
		return 0
	case c.Cooldown == DefaultCooldown:
		return def
	default:
		return c.Cooldown
	}
}

func (c *Command) clone() *Command {
	cp := *c
	cp.Aliases = append([]string(nil), c.Aliases...)
	return &cp
}

// Context is what every handler receives.
type Context struct {
	Ctx   context.Context
	Event *Event

	// Actor is the normalized id of the sender. Synthetic is set when no usable
	// id could be derived and a per-session placeholder was substituted.
	Actor     string
	Synthetic bool
	Role      int

	ThreadID string
	IsGroup  bool

	// Prefix is the prefix active in the thread; Args are the tokens after the
	// command name.
	Prefix  string
	Args    []string
	Command *Command

	State *State
}

// Reply sends text to the originating thread quoting the originating message.
func (c *Context) Reply(text string) (string, error) {
	quote := ""
	if c.Event != nil {
		quote = c.Event.ID
	}
	return c.State.send(c.Ctx, c.ThreadID, text, SendOptions{QuoteID: quote})
}

// Send sends text to the originating thread without quoting.
func (c *Context) Send(text string) (string, error) {
	return c.State.send(c.Ctx, c.ThreadID, text, SendOptions{})
}

// Store returns the persistence collaborator, which may be nil.
func (c *Context) Store() Store { return c.State.store }

// Transport returns the messaging collaborator, which may be nil.
func (c *Context) Transport() Transport { return c.State.transport }

// Logger returns a logger annotated with the dispatch identity.
func (c *Context) Logger() zerolog.Logger {
	l := c.State.log.With().Str("thread", c.ThreadID).Str("actor", c.Actor)
	if c.Command != nil {
		l = l.Str("command", c.Command.Name)
	}
	return l.Logger()
}
