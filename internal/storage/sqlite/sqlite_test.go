package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	if err := Migrate(s.db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil || n != 1 {
		t.Errorf("schema_migrations rows = %d, %v", n, err)
	}
}

func TestStore_UsersAndGroups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if u, err := s.GetUser(ctx, "1"); err != nil || u != nil {
		t.Fatalf("GetUser(missing) = %+v, %v", u, err)
	}
	seen := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
	if err := s.SaveUser(ctx, &st.User{ID: "1", Name: "ann", FirstSeen: seen, LastSeen: seen, CommandCount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveUser(ctx, &st.User{ID: "1", Name: "ann b", FirstSeen: seen, LastSeen: seen, CommandCount: 2}); err != nil {
		t.Fatal(err)
	}
	u, err := s.GetUser(ctx, "1")
	if err != nil || u == nil {
		t.Fatalf("GetUser() = %+v, %v", u, err)
	}
	if u.Name != "ann b" || u.CommandCount != 2 || !u.FirstSeen.Equal(seen) {
		t.Errorf("user = %+v", u)
	}

	if err := s.SaveGroup(ctx, &st.Group{ID: "g", Name: "Gophers", Prefix: "?"}); err != nil {
		t.Fatal(err)
	}
	g, err := s.GetGroup(ctx, "g")
	if err != nil || g == nil || g.Prefix != "?" || g.Name != "Gophers" {
		t.Errorf("GetGroup() = %+v, %v", g, err)
	}
	if g, err := s.GetGroup(ctx, "missing"); err != nil || g != nil {
		t.Errorf("GetGroup(missing) = %+v, %v", g, err)
	}
}

func TestStore_StatsAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	for i, u := range []st.CommandUsage{
		{ThreadID: "g", UserID: "1", Command: "ping"},
		{ThreadID: "g", UserID: "1", Command: "ping"},
		{ThreadID: "g", UserID: "2", Command: "help"},
	} {
		u.Datetime = now.Add(time.Duration(i) * time.Second)
		if err := s.LogCommandUsage(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.LogMessage(ctx, st.MessageRecord{ThreadID: "g", UserID: "2", Length: 4, Datetime: now}); err != nil {
		t.Fatal(err)
	}
	_ = s.SaveUser(ctx, &st.User{ID: "1", CommandCount: 2})

	gs, err := s.GroupStats(ctx, "g")
	if err != nil {
		t.Fatal(err)
	}
	if gs.Commands != 3 || gs.Messages != 1 {
		t.Errorf("group stats = %+v", gs)
	}
	if len(gs.TopCommands) != 2 || gs.TopCommands[0] != (st.Count{Key: "ping", Count: 2}) {
		t.Errorf("top commands = %+v", gs.TopCommands)
	}
	if len(gs.TopUsers) != 2 || gs.TopUsers[0].Key != "1" {
		t.Errorf("top users = %+v", gs.TopUsers)
	}

	us, err := s.UserStats(ctx, "1")
	if err != nil || us.Commands != 2 || len(us.TopCommands) != 1 {
		t.Errorf("user stats = %+v, %v", us, err)
	}

	history, err := s.FetchCommandHistory(ctx, "g")
	if err != nil || len(history) != 3 {
		t.Fatalf("history = %+v, %v", history, err)
	}
	if history[0].Command != "ping" || history[2].Command != "help" {
		t.Errorf("history order = %+v", history)
	}
}

func TestStore_PruneBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-72 * time.Hour)

	_ = s.LogCommandUsage(ctx, st.CommandUsage{ThreadID: "g", UserID: "1", Command: "ping", Datetime: old})
	_ = s.LogCommandUsage(ctx, st.CommandUsage{ThreadID: "g", UserID: "1", Command: "ping", Datetime: time.Now()})
	_ = s.LogMessage(ctx, st.MessageRecord{ThreadID: "g", UserID: "1", Datetime: old})

	n, err := s.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("PruneBefore() = %d, %v; want 2", n, err)
	}
	history, _ := s.FetchCommandHistory(ctx, "g")
	if len(history) != 1 {
		t.Errorf("history = %d rows after prune", len(history))
	}
	if gs, _ := s.GroupStats(ctx, "g"); gs.Commands != 2 || gs.Messages != 1 {
		t.Errorf("prune touched counters: %+v", gs)
	}
}
