package builtin

import (
	"fmt"
	"strings"

	"github.com/keshon/chatdispatch/internal/core"
)

func Help() *core.Command {
	return &core.Command{
		Name:        "help",
		Aliases:     []string{"h", "commands"},
		Category:    categoryInformation,
		Description: "List the available commands",
		Usage:       "help [command]",
		Cooldown:    core.NoCooldown,
		Run: func(c *core.Context) error {
			if len(c.Args) > 0 {
				_, err := c.Reply(describeCommand(c, c.Args[0]))
				return err
			}
			_, err := c.Reply(buildHelpByCategory(c))
			return err
		},
	}
}

// buildHelpByCategory lists the direct commands the caller's role allows.
func buildHelpByCategory(c *core.Context) string {
	var sb strings.Builder
	for _, group := range c.State.Registry().ListByCategory() {
		var lines []string
		for _, cmd := range group.Commands {
			if cmd.Run == nil || cmd.Role > c.Role {
				continue
			}
			lines = append(lines, fmt.Sprintf("  %s%s - %s", c.Prefix, cmd.Name, cmd.Description))
		}
		if len(lines) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(group.Name)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}
	if sb.Len() == 0 {
		return "No commands available."
	}
	fmt.Fprintf(&sb, "\n\nType %shelp <command> for details.", c.Prefix)
	return sb.String()
}

func describeCommand(c *core.Context, name string) string {
	cmd, ok := c.State.Registry().Resolve(strings.TrimPrefix(name, c.Prefix))
	if !ok || cmd.Run == nil || cmd.Role > c.Role {
		return fmt.Sprintf("Unknown command %s. Type %shelp for the list.", name, c.Prefix)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s - %s", c.Prefix, cmd.Name, cmd.Description)
	if cmd.Usage != "" {
		fmt.Fprintf(&sb, "\nUsage: %s%s", c.Prefix, cmd.Usage)
	}
	if len(cmd.Aliases) > 0 {
		fmt.Fprintf(&sb, "\nAliases: %s", strings.Join(cmd.Aliases, ", "))
	}
	if cmd.Role > core.RoleUser {
		fmt.Fprintf(&sb, "\nRequires: %s", core.RoleName(cmd.Role))
	}
	return sb.String()
}
