package core

import (
	"strings"
)

// SyntheticPrefix marks placeholder actor ids.
const SyntheticPrefix = "anon:"

// NormalizeID reduces a transport identity to its canonical form: the part
// before any "@domain", without a ":device" suffix or a leading "+", lower cased.
//
//	"+4915112345678:12@s.whatsapp.net" -> "4915112345678"
//	"<@1234>"                         -> "1234"
func NormalizeID(raw string) string {
	id := strings.TrimSpace(raw)
	if strings.HasPrefix(id, "<@") && strings.HasSuffix(id, ">") {
		id = strings.TrimPrefix(strings.TrimSuffix(id[2:], ">"), "!")
	}
	if strings.HasPrefix(id, SyntheticPrefix) {
		return id
	}
	if i := strings.IndexByte(id, '@'); i >= 0 {
		id = id[:i]
	}
	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}
	id = strings.TrimPrefix(id, "+")
	return strings.ToLower(id)
}

// ResolveActor derives the actor id of an event. Precedence: group participant
// id, private-chat sender id, then alternate ids. When nothing usable is left
// the synthetic placeholder "anon:<session>:<thread>" is returned with
// synthetic set, so channels and other pseudo identities still dispatch.
func ResolveActor(ev *Event, session string) (id string, synthetic bool) {
	candidates := make([]string, 0, 2+len(ev.Sender.AltIDs))
	candidates = append(candidates, ev.Sender.ParticipantID, ev.Sender.ChatID)
	candidates = append(candidates, ev.Sender.AltIDs...)

	for _, c := range candidates {
		if n := NormalizeID(c); n != "" && !strings.HasPrefix(n, SyntheticPrefix) {
			return n, false
		}
	}
	return SyntheticPrefix + session + ":" + ev.ThreadID, true
}
