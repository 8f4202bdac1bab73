package storagetypes

import (
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	MessageCount int       `json:"message_count"`
	CommandCount int       `json:"command_count"`
}

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix"` // per-thread override, empty = global
	FirstSeen time.Time `json:"first_seen"`
}

type CommandUsage struct {
	ThreadID string    `json:"thread_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Command  string    `json:"command"`
	Args     string    `json:"args"`
	Datetime time.Time `json:"datetime"`
}

type MessageRecord struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	UserID   string    `json:"user_id"`
	Kind     string    `json:"kind"`
	Length   int       `json:"length"`
	Datetime time.Time `json:"datetime"`
}

// Count is one row of a ranked aggregate ("top commands", "top users").
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type UserStats struct {
	UserID      string    `json:"user_id"`
	Messages    int       `json:"messages"`
	Commands    int       `json:"commands"`
	TopCommands []Count   `json:"top_commands"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

type GroupStats struct {
	ThreadID    string  `json:"thread_id"`
	Messages    int     `json:"messages"`
	Commands    int     `json:"commands"`
	TopUsers    []Count `json:"top_users"`
	TopCommands []Count `json:"top_commands"`
}
