package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/chatdispatch/internal/core"
	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

func Prefix() *core.Command {
	cmd := &core.Command{
		Name:        "prefix",
		Category:    categorySettings,
		Description: "Show or change the command prefix of this group",
		Usage:       "prefix [new prefix|reset]",
		Role:        core.RoleGroupAdmin,
		Run:         runPrefix,
	}
	cmd.Run = core.Wrap(cmd.Run, core.WithGroupOnly())
	return cmd
}

func runPrefix(c *core.Context) error {
	if len(c.Args) == 0 {
		_, err := c.Reply(fmt.Sprintf("The prefix here is %s", c.Prefix))
		return err
	}

	next := c.Args[0]
	if strings.EqualFold(next, "reset") {
		next = ""
	}
	c.State.UpdatePolicy(func(p *core.Policy) {
		if next == "" {
			delete(p.ThreadPrefixes, c.ThreadID)
		} else {
			p.ThreadPrefixes[c.ThreadID] = next
		}
	})

	if store := c.Store(); store != nil {
		if err := savePrefix(c.Ctx, store, c.ThreadID, next); err != nil {
			log := c.Logger()
			log.Warn().Err(err).Msg("failed to persist thread prefix")
		}
	}

	active := c.State.Policy().PrefixFor(c.ThreadID)
	_, err := c.Reply(fmt.Sprintf("Prefix set to %s", active))
	return err
}

func savePrefix(ctx context.Context, store core.Store, threadID, prefix string) error {
	g, err := store.GetGroup(ctx, threadID)
	if err != nil {
		return err
	}
	if g == nil {
		g = &st.Group{ID: threadID}
	}
	g.Prefix = prefix
	return store.SaveGroup(ctx, g)
}
