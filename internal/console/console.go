// Package console drives the dispatch engine from a terminal. Each input
// line becomes one event; lines starting with ':' control the simulated
// session (who is speaking, in which thread).
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keshon/chatdispatch/internal/core"
)

// Dispatcher receives every parsed event.
type Dispatcher interface {
	Handle(ctx context.Context, ev *core.Event) core.Outcome
}

// Transport prints outbound messages to a writer.
type Transport struct {
	mu     sync.Mutex
	out    io.Writer
	admins []string
	newID  func() string
}

func NewTransport(out io.Writer, groupAdmins []string) *Transport {
	return &Transport{
		out:    out,
		admins: groupAdmins,
		newID:  func() string { return uuid.NewString() },
	}
}

func (t *Transport) Send(_ context.Context, threadID, text string, opts core.SendOptions) (string, error) {
	id := t.newID()
	t.mu.Lock()
	defer t.mu.Unlock()
	if opts.QuoteID != "" {
		fmt.Fprintf(t.out, "[%s] bot (%s, re %s): %s\n", threadID, id, opts.QuoteID, text)
	} else {
		fmt.Fprintf(t.out, "[%s] bot (%s): %s\n", threadID, id, text)
	}
	return id, nil
}

func (t *Transport) ThreadInfo(_ context.Context, threadID string) (*core.ThreadInfo, error) {
	info := &core.ThreadInfo{ID: threadID, Name: threadID, SelfID: "bot"}
	if isGroupThread(threadID) {
		info.IsGroup = true
		info.Admins = append([]string(nil), t.admins...)
	}
	return info, nil
}

func (t *Transport) AcceptInvite(_ context.Context, ev *core.Event) error {
	t.printf("* accepted invite %s from %s\n", ev.InviteCode, ev.InviterID)
	return nil
}

func (t *Transport) RejectCall(_ context.Context, ev *core.Event) error {
	t.printf("* rejected call %s from %s\n", ev.CallID, ev.CallerID)
	return nil
}

func (t *Transport) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// Threads whose id starts with "g" are group threads.
func isGroupThread(id string) bool {
	return strings.HasPrefix(id, "g")
}

// Session is the simulated speaker and thread.
type Session struct {
	User   string
	Name   string
	Thread string

	now   func() time.Time
	newID func() string
}

func NewSession(user, thread string) *Session {
	return &Session{
		User:   user,
		Name:   user,
		Thread: thread,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// ErrQuit is returned by Parse for ":quit".
var ErrQuit = errors.New("console: quit")

// Parse turns one input line into an event. Session directives return a
// nil event and update s in place.
func (s *Session) Parse(line string) (*core.Event, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, ":") {
		ev := s.event(core.KindText)
		ev.Text = line
		return ev, nil
	}

	directive, rest, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	rest = strings.TrimSpace(rest)
	fields := strings.Fields(rest)

	switch directive {
	case "quit", "exit":
		return nil, ErrQuit
	case "as":
		if len(fields) == 0 {
			return nil, fmt.Errorf("usage: :as <user> [name]")
		}
		s.User = fields[0]
		s.Name = fields[0]
		if len(fields) > 1 {
			s.Name = strings.Join(fields[1:], " ")
		}
		return nil, nil
	case "thread":
		if len(fields) != 1 {
			return nil, fmt.Errorf("usage: :thread <id>")
		}
		s.Thread = fields[0]
		return nil, nil
	case "reply":
		target, text, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("usage: :reply <message id> <text>")
		}
		ev := s.event(core.KindText)
		ev.QuotedID = target
		ev.Text = strings.TrimSpace(text)
		return ev, nil
	case "react":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: :react <message id> <symbol>")
		}
		ev := s.event(core.KindReaction)
		ev.ReactionTarget = fields[0]
		ev.Reaction = fields[1]
		return ev, nil
	case "media":
		ev := s.event(core.KindMedia)
		ev.Text = rest
		return ev, nil
	case "join", "leave":
		if len(fields) == 0 {
			return nil, fmt.Errorf("usage: :%s <user>...", directive)
		}
		kind := core.KindMembershipJoined
		if directive == "leave" {
			kind = core.KindMembershipLeft
		}
		ev := s.event(kind)
		ev.Participants = fields
		return ev, nil
	case "call":
		ev := s.event(core.KindCallIncoming)
		ev.CallerID = s.User
		ev.CallID = s.newID()
		return ev, nil
	case "invite":
		if len(fields) != 1 {
			return nil, fmt.Errorf("usage: :invite <code>")
		}
		ev := s.event(core.KindInviteReceived)
		ev.InviterID = s.User
		ev.InviteCode = fields[0]
		return ev, nil
	case "contact":
		ev := s.event(core.KindContactUpdated)
		ev.Participants = []string{s.User}
		return ev, nil
	}
	return nil, fmt.Errorf("unknown directive :%s", directive)
}

func (s *Session) event(kind core.Kind) *core.Event {
	ev := &core.Event{
		ID:       s.newID(),
		ThreadID: s.Thread,
		IsGroup:  isGroupThread(s.Thread),
		Kind:     kind,
		Time:     s.now(),
		Sender:   core.Sender{Name: s.Name},
	}
	if ev.IsGroup {
		ev.Sender.ParticipantID = s.User
	} else {
		ev.Sender.ChatID = s.User
	}
	return ev
}

// Run reads lines from in until EOF, ":quit" or ctx is done. Messages typed
// by the user are echoed with their id so they can be replied to or reacted on.
func Run(ctx context.Context, in io.Reader, out io.Writer, s *Session, d Dispatcher) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			ev, err := s.Parse(line)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(out, "!", err)
				continue
			}
			if ev == nil {
				continue
			}
			if ev.Kind == core.KindText || ev.Kind == core.KindMedia {
				fmt.Fprintf(out, "[%s] %s (%s): %s\n", ev.ThreadID, s.Name, ev.ID, ev.Text)
			}
			o := d.Handle(ctx, ev)
			if o.Err != nil {
				fmt.Fprintf(out, "  -> %s: %v\n", o.Status, o.Err)
			}
		}
	}
}
