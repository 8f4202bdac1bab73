package core

import (
	"time"
)

// Set is a set of normalized actor or thread ids.
type Set map[string]struct{}

// NewSet builds a set, normalizing every id with NormalizeID.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if n := NormalizeID(id); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether id (normalized) is in the set.
func (s Set) Has(id string) bool {
	if len(s) == 0 || id == "" {
		return false
	}
	_, ok := s[NormalizeID(id)]
	return ok
}

// Add inserts id.
func (s Set) Add(id string) {
	if n := NormalizeID(id); n != "" {
		s[n] = struct{}{}
	}
}

// Remove deletes id.
func (s Set) Remove(id string) {
	delete(s, NormalizeID(id))
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Notice is a configurable lifecycle message.
type Notice struct {
	Enabled  bool
	Template string
}

// Policy is the read-only configuration the routers consult. The State keeps
// it as an atomically swapped snapshot; use State.UpdatePolicy to change it.
type Policy struct {
	Prefix         string
	ThreadPrefixes map[string]string

	DefaultCooldown time.Duration

	Banned Set

	AdminOnly bool
	Admins    Set

	Whitelist          bool
	Whitelisted        Set
	WhitelistedThreads Set

	Welcome  Notice
	Farewell Notice

	AutoRejectCalls   bool
	AutoAcceptInvites bool
	InvitesAdminOnly  bool
}

// DefaultPolicy returns a policy with prefix "!" and no restrictions.
func DefaultPolicy() Policy {
	return Policy{
		Prefix:          "!",
		DefaultCooldown: 0,
		Welcome:         Notice{Template: "Welcome {names} to {thread}!"},
		Farewell:        Notice{Template: "{names} left {thread}."},
	}
}

// PrefixFor returns the prefix active in a thread.
func (p *Policy) PrefixFor(threadID string) string {
	if pfx, ok := p.ThreadPrefixes[threadID]; ok && pfx != "" {
		return pfx
	}
	return p.Prefix
}

// IsAdmin reports membership of the admin allow-list.
func (p *Policy) IsAdmin(actor string) bool {
	return p.Admins.Has(actor)
}

func (p *Policy) clone() *Policy {
	cp := *p
	cp.ThreadPrefixes = make(map[string]string, len(p.ThreadPrefixes))
	for k, v := range p.ThreadPrefixes {
		cp.ThreadPrefixes[k] = v
	}
	cp.Banned = p.Banned.clone()
	cp.Admins = p.Admins.clone()
	cp.Whitelisted = p.Whitelisted.clone()
	cp.WhitelistedThreads = p.WhitelistedThreads.clone()
	return &cp
}
