package builtin

import (
	"fmt"

	"github.com/keshon/chatdispatch/internal/core"
)

func Ping() *core.Command {
	return &core.Command{
		Name:        "ping",
		Category:    categoryMaintenance,
		Description: "Check that the bot is alive",
		Run: func(c *core.Context) error {
			reply := "🏓 Pong!"
			if sent := c.Event.Time; !sent.IsZero() {
				reply = fmt.Sprintf("🏓 Pong! %dms", c.State.Clock().Now().Sub(sent).Milliseconds())
			}
			_, err := c.Reply(reply)
			return err
		},
	}
}
