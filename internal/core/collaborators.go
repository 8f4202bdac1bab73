package core

import (
	"context"
	"errors"
	"time"

	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

// ErrUnsupported is returned by transports that cannot perform a
// kind-specific action (accepting invites, rejecting calls).
var ErrUnsupported = errors.New("core: action not supported by transport")

// SendOptions tune an outbound message.
type SendOptions struct {
	// QuoteID quotes the given message when non-empty.
	QuoteID string
}

// ThreadInfo is the metadata the core needs about a thread.
type ThreadInfo struct {
	ID      string
	Name    string
	IsGroup bool

	// Admins is the transport-provided admin roster of a group thread.
	Admins []string

	// SelfID is the bot's own id in this thread.
	SelfID string
}

// Transport is the messaging client the core calls back into.
type Transport interface {
	Send(ctx context.Context, threadID, text string, opts SendOptions) (string, error)
	ThreadInfo(ctx context.Context, threadID string) (*ThreadInfo, error)
	AcceptInvite(ctx context.Context, ev *Event) error
	RejectCall(ctx context.Context, ev *Event) error
}

// Store is the persistence collaborator. Every call made by the core is
// best-effort: failures are logged and never stop dispatch.
type Store interface {
	GetUser(ctx context.Context, id string) (*st.User, error)
	SaveUser(ctx context.Context, u *st.User) error
	GetGroup(ctx context.Context, id string) (*st.Group, error)
	SaveGroup(ctx context.Context, g *st.Group) error
	LogCommandUsage(ctx context.Context, u st.CommandUsage) error
	LogMessage(ctx context.Context, m st.MessageRecord) error
	UserStats(ctx context.Context, id string) (*st.UserStats, error)
	GroupStats(ctx context.Context, threadID string) (*st.GroupStats, error)
}

// Timer is a scheduled deferred task.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so cooldowns and subscription TTLs can be tested.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
