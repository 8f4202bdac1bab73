package builtin

import (
	"fmt"
	"strings"

	"github.com/keshon/chatdispatch/internal/core"
	st "github.com/keshon/chatdispatch/internal/storagetypes"
	"github.com/keshon/chatdispatch/pkg/util"
)

func Stats() *core.Command {
	return &core.Command{
		Name:        "stats",
		Category:    categoryInformation,
		Description: "Show activity statistics for you and this group",
		Run:         runStats,
	}
}

func runStats(c *core.Context) error {
	store := c.Store()
	if store == nil {
		_, err := c.Reply("Statistics are not available.")
		return err
	}

	var sb strings.Builder
	if !c.Synthetic {
		us, err := store.UserStats(c.Ctx, c.Actor)
		if err != nil {
			return fmt.Errorf("user stats: %w", err)
		}
		fmt.Fprintf(&sb, "You: %d messages, %d commands", us.Messages, us.Commands)
		if since := util.FormatDate(us.FirstSeen, "YYYY.MM.DD"); since != "" {
			fmt.Fprintf(&sb, " since %s", since)
		}
		if len(us.TopCommands) > 0 {
			fmt.Fprintf(&sb, "\nYour top commands: %s", formatCounts(us.TopCommands, c.Prefix))
		}
	}

	if c.IsGroup {
		gs, err := store.GroupStats(c.Ctx, c.ThreadID)
		if err != nil {
			return fmt.Errorf("group stats: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "This group: %d messages, %d commands", gs.Messages, gs.Commands)
		if len(gs.TopCommands) > 0 {
			fmt.Fprintf(&sb, "\nTop commands: %s", formatCounts(gs.TopCommands, c.Prefix))
		}
		if len(gs.TopUsers) > 0 {
			fmt.Fprintf(&sb, "\nMost active: %s", formatCounts(gs.TopUsers, ""))
		}
	}

	if sb.Len() == 0 {
		sb.WriteString("No statistics yet.")
	}
	_, err := c.Reply(sb.String())
	return err
}

func formatCounts(counts []st.Count, prefix string) string {
	parts := make([]string, len(counts))
	for i, n := range counts {
		parts[i] = fmt.Sprintf("%s%s (%d)", prefix, n.Key, n.Count)
	}
	return strings.Join(parts, ", ")
}
