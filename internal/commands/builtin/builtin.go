// Package builtin holds the commands every deployment ships with.
package builtin

import (
	"github.com/keshon/chatdispatch/internal/core"
)

const (
	categoryInformation = "🕯️ Information"
	categorySettings    = "⚙️ Settings"
	categoryModeration  = "🛡️ Moderation"
	categoryMaintenance = "🛠️ Maintenance"
)

// Commands returns fresh definitions of the built-in commands.
func Commands() []*core.Command {
	return []*core.Command{
		Ping(),
		Help(),
		Prefix(),
		Stats(),
		Ban(),
		Unban(),
	}
}

// Register installs the built-in commands into st's registry.
func Register(st *core.State) error {
	return st.Registry().RegisterAll(Commands()...)
}
