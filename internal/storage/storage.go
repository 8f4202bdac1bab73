// /internal/storage/storage.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keshon/datastore"

	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

const (
	commandHistoryLimit int = 50
	messageHistoryLimit int = 200
	topLimit            int = 5
)

// Storage is the JSON-file backend of core.Store. Users live under
// "user:<id>", threads under "thread:<id>".
type Storage struct {
	ds *datastore.DataStore

	// mu serializes read-modify-write cycles on records.
	mu sync.Mutex
}

type userRecord struct {
	User     st.User        `json:"user"`
	Commands map[string]int `json:"commands"`
}

type threadRecord struct {
	Group               st.Group           `json:"group"`
	CommandsHistoryList []st.CommandUsage  `json:"cmd_history"`
	MessageHistoryList  []st.MessageRecord `json:"msg_history"`
	Messages            int                `json:"messages"`
	CommandCounts       map[string]int     `json:"command_counts"`
	UserActivity        map[string]int     `json:"user_activity"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

const threadIndexKey = "index:threads"

func userKey(id string) string   { return "user:" + id }
func threadKey(id string) string { return "thread:" + id }

// load decodes the value stored under key into out. The datastore keeps
// whatever was added or decoded from disk, so values go through a JSON round trip.
func (s *Storage) load(key string, out any) (bool, error) {
	data, exists := s.ds.Get(key)
	if !exists {
		return false, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("error marshalling %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("error unmarshalling %s: %w", key, err)
	}
	return true, nil
}

func (s *Storage) getOrCreateUserRecord(id string) (*userRecord, bool, error) {
	var rec userRecord
	found, err := s.load(userKey(id), &rec)
	if err != nil {
		return nil, false, err
	}
	if !found {
		rec.User.ID = id
	}
	if rec.Commands == nil {
		rec.Commands = map[string]int{}
	}
	return &rec, found, nil
}

func (s *Storage) getOrCreateThreadRecord(id string) (*threadRecord, error) {
	var rec threadRecord
	found, err := s.load(threadKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		rec.Group.ID = id
	}
	if rec.CommandCounts == nil {
		rec.CommandCounts = map[string]int{}
	}
	if rec.UserActivity == nil {
		rec.UserActivity = map[string]int{}
	}
	return &rec, nil
}

// putThread stores rec, adding its id to the thread index on first write.
func (s *Storage) putThread(rec *threadRecord) error {
	key := threadKey(rec.Group.ID)
	if _, exists := s.ds.Get(key); !exists {
		ids, err := s.threadIDs()
		if err != nil {
			return err
		}
		s.ds.Add(threadIndexKey, append(ids, rec.Group.ID))
	}
	s.ds.Add(key, rec)
	return nil
}

func (s *Storage) threadIDs() ([]string, error) {
	var ids []string
	if _, err := s.load(threadIndexKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Storage) GetUser(_ context.Context, id string) (*st.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found, err := s.getOrCreateUserRecord(id)
	if err != nil || !found {
		return nil, err
	}
	u := rec.User
	return &u, nil
}

func (s *Storage) SaveUser(_ context.Context, u *st.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("save user: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, _, err := s.getOrCreateUserRecord(u.ID)
	if err != nil {
		return err
	}
	rec.User = *u
	s.ds.Add(userKey(u.ID), rec)
	return nil
}

func (s *Storage) GetGroup(_ context.Context, id string) (*st.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec threadRecord
	found, err := s.load(threadKey(id), &rec)
	if err != nil || !found {
		return nil, err
	}
	g := rec.Group
	return &g, nil
}

func (s *Storage) SaveGroup(_ context.Context, g *st.Group) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("save group: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.getOrCreateThreadRecord(g.ID)
	if err != nil {
		return err
	}
	rec.Group = *g
	return s.putThread(rec)
}

func (s *Storage) LogCommandUsage(_ context.Context, u st.CommandUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getOrCreateThreadRecord(u.ThreadID)
	if err != nil {
		return err
	}
	rec.CommandsHistoryList = append(rec.CommandsHistoryList, u)
	if len(rec.CommandsHistoryList) > commandHistoryLimit {
		rec.CommandsHistoryList = rec.CommandsHistoryList[len(rec.CommandsHistoryList)-commandHistoryLimit:]
	}
	rec.CommandCounts[u.Command]++
	rec.UserActivity[u.UserID]++
	if err := s.putThread(rec); err != nil {
		return err
	}

	if u.UserID == "" {
		return nil
	}
	user, _, err := s.getOrCreateUserRecord(u.UserID)
	if err != nil {
		return err
	}
	user.Commands[u.Command]++
	s.ds.Add(userKey(u.UserID), user)
	return nil
}

func (s *Storage) LogMessage(_ context.Context, m st.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getOrCreateThreadRecord(m.ThreadID)
	if err != nil {
		return err
	}
	rec.Messages++
	rec.UserActivity[m.UserID]++
	rec.MessageHistoryList = append(rec.MessageHistoryList, m)
	if len(rec.MessageHistoryList) > messageHistoryLimit {
		rec.MessageHistoryList = rec.MessageHistoryList[len(rec.MessageHistoryList)-messageHistoryLimit:]
	}
	return s.putThread(rec)
}

// FetchCommandHistory returns the most recent command invocations of a thread.
func (s *Storage) FetchCommandHistory(_ context.Context, threadID string) ([]st.CommandUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.getOrCreateThreadRecord(threadID)
	if err != nil {
		return nil, err
	}
	return rec.CommandsHistoryList, nil
}

func (s *Storage) UserStats(_ context.Context, id string) (*st.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found, err := s.getOrCreateUserRecord(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return &st.UserStats{UserID: id}, nil
	}
	return &st.UserStats{
		UserID:      id,
		Messages:    rec.User.MessageCount,
		Commands:    rec.User.CommandCount,
		TopCommands: top(rec.Commands, topLimit),
		FirstSeen:   rec.User.FirstSeen,
		LastSeen:    rec.User.LastSeen,
	}, nil
}

func (s *Storage) GroupStats(_ context.Context, threadID string) (*st.GroupStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.getOrCreateThreadRecord(threadID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range rec.CommandCounts {
		total += n
	}
	return &st.GroupStats{
		ThreadID:    threadID,
		Messages:    rec.Messages,
		Commands:    total,
		TopUsers:    top(rec.UserActivity, topLimit),
		TopCommands: top(rec.CommandCounts, topLimit),
	}, nil
}

// PruneBefore drops history entries older than cutoff and returns how many
// were removed. Counters are kept.
func (s *Storage) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.threadIDs()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		var rec threadRecord
		found, err := s.load(threadKey(id), &rec)
		if err != nil {
			return removed, err
		}
		if !found {
			continue
		}
		before := len(rec.CommandsHistoryList) + len(rec.MessageHistoryList)
		rec.CommandsHistoryList = keepAfter(rec.CommandsHistoryList, cutoff, func(u st.CommandUsage) time.Time { return u.Datetime })
		rec.MessageHistoryList = keepAfter(rec.MessageHistoryList, cutoff, func(m st.MessageRecord) time.Time { return m.Datetime })
		if n := before - len(rec.CommandsHistoryList) - len(rec.MessageHistoryList); n > 0 {
			removed += n
			s.ds.Add(threadKey(id), &rec)
		}
	}
	return removed, nil
}

func keepAfter[T any](items []T, cutoff time.Time, at func(T) time.Time) []T {
	out := items[:0]
	for _, it := range items {
		if !at(it).Before(cutoff) {
			out = append(out, it)
		}
	}
	return out
}

// top returns the n largest counts, ties broken by key.
func top(counts map[string]int, n int) []st.Count {
	out := make([]st.Count, 0, len(counts))
	for k, v := range counts {
		if k == "" || v == 0 {
			continue
		}
		out = append(out, st.Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
