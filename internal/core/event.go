package core

import "time"

// Kind discriminates inbound events.
type Kind string

const (
	KindText     Kind = "text"
	KindMedia    Kind = "media"
	KindReaction Kind = "reaction"

	KindMembershipJoined Kind = "membership.joined"
	KindMembershipLeft   Kind = "membership.left"
	KindCallIncoming     Kind = "call.incoming"
	KindContactUpdated   Kind = "contact.updated"
	KindInviteReceived   Kind = "invite.received"
)

// LifecycleKinds lists every kind routed to the LifecycleRouter.
var LifecycleKinds = []Kind{
	KindMembershipJoined,
	KindMembershipLeft,
	KindCallIncoming,
	KindContactUpdated,
	KindInviteReceived,
}

// IsLifecycle reports whether k is a membership, call, contact or invite notification.
func (k Kind) IsLifecycle() bool {
	for _, l := range LifecycleKinds {
		if k == l {
			return true
		}
	}
	return false
}

// Sender carries every identity the transport knows for the author of an event.
// Id schemes differ between transports, so the actor id is derived from these
// fields by ResolveActor.
type Sender struct {
	// ParticipantID is the author inside a group thread.
	ParticipantID string

	// ChatID is the author of a private chat.
	ChatID string

	// AltIDs holds transport specific alternate formats (lid, device jid, handle).
	AltIDs []string

	Name string
}

// Event is one normalized inbound event.
type Event struct {
	ID       string
	ThreadID string
	IsGroup  bool

	// FromMe marks events authored by the bot's own account.
	FromMe bool

	Sender Sender
	Kind   Kind
	Time   time.Time

	// Text is the message body for text and media captions.
	Text string

	// QuotedID is the id of the message this one replies to.
	QuotedID string

	// ReactionTarget and Reaction describe a reaction event.
	ReactionTarget string
	Reaction       string

	// Participants lists the users a membership event is about.
	Participants []string

	// CallerID and CallID describe an incoming call.
	CallerID string
	CallID   string

	// InviterID and InviteCode describe a group invite.
	InviterID  string
	InviteCode string

	// Raw is the untouched transport payload.
	Raw any
}

// IsReply reports whether the event is a text message quoting an earlier one.
func (e *Event) IsReply() bool {
	return e.Kind == KindText && e.QuotedID != ""
}
