package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

// fakeClock only moves when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and fires due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

type sentMessage struct {
	ThreadID string
	Text     string
	QuoteID  string
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	threads  map[string]*ThreadInfo
	accepted int
	rejected int
	sendErr  error
	infoErr  error
	lookups  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{threads: make(map[string]*ThreadInfo)}
}

func (t *fakeTransport) Send(_ context.Context, threadID, text string, opts SendOptions) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return "", t.sendErr
	}
	t.sent = append(t.sent, sentMessage{ThreadID: threadID, Text: text, QuoteID: opts.QuoteID})
	return fmt.Sprintf("out-%d", len(t.sent)), nil
}

func (t *fakeTransport) ThreadInfo(_ context.Context, threadID string) (*ThreadInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lookups++
	if t.infoErr != nil {
		return nil, t.infoErr
	}
	if info, ok := t.threads[threadID]; ok {
		return info, nil
	}
	return &ThreadInfo{ID: threadID}, nil
}

func (t *fakeTransport) AcceptInvite(context.Context, *Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accepted++
	return nil
}

func (t *fakeTransport) RejectCall(context.Context, *Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejected++
	return nil
}

func (t *fakeTransport) Sent() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

func (t *fakeTransport) Last() sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return sentMessage{}
	}
	return t.sent[len(t.sent)-1]
}

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*st.User
	groups   map[string]*st.Group
	usage    []st.CommandUsage
	messages []st.MessageRecord
	calls    int
	fail     bool
	panics   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*st.User), groups: make(map[string]*st.Group)}
}

func (s *fakeStore) enter() error {
	s.calls++
	if s.panics {
		panic("store exploded")
	}
	if s.fail {
		return errStoreDown
	}
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, id string) (*st.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) SaveUser(_ context.Context, u *st.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeStore) GetGroup(_ context.Context, id string) (*st.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	return s.groups[id], nil
}

func (s *fakeStore) SaveGroup(_ context.Context, g *st.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	s.groups[g.ID] = g
	return nil
}

func (s *fakeStore) LogCommandUsage(_ context.Context, u st.CommandUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	s.usage = append(s.usage, u)
	return nil
}

func (s *fakeStore) LogMessage(_ context.Context, m st.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return err
	}
	s.messages = append(s.messages, m)
	return nil
}

func (s *fakeStore) UserStats(_ context.Context, id string) (*st.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	return &st.UserStats{UserID: id}, nil
}

func (s *fakeStore) GroupStats(_ context.Context, id string) (*st.GroupStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return nil, err
	}
	return &st.GroupStats{ThreadID: id}, nil
}

func (s *fakeStore) Usage() []st.CommandUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]st.CommandUsage(nil), s.usage...)
}

func (s *fakeStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type harness struct {
	state     *State
	clock     *fakeClock
	transport *fakeTransport
	store     *fakeStore
}

func newHarness(p Policy) *harness {
	h := &harness{clock: newFakeClock(), transport: newFakeTransport(), store: newFakeStore()}
	h.state = New(Options{
		Policy:    p,
		Transport: h.transport,
		Store:     h.store,
		Clock:     h.clock,
		Session:   "sess",
	})
	return h
}

func textEvent(thread, actor, text string) *Event {
	return &Event{
		ID:       "in-" + actor + "-" + text,
		ThreadID: thread,
		Kind:     KindText,
		Sender:   Sender{ChatID: actor},
		Text:     text,
	}
}

func groupEvent(thread, actor, text string) *Event {
	ev := textEvent(thread, actor, text)
	ev.IsGroup = true
	ev.Sender = Sender{ParticipantID: actor}
	return ev
}
