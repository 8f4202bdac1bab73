package builtin

import (
	"fmt"

	"github.com/keshon/chatdispatch/internal/core"
)

func Ban() *core.Command {
	cmd := &core.Command{
		Name:        "ban",
		Category:    categoryModeration,
		Description: "Stop the bot from responding to a user",
		Usage:       "ban <user>",
		Role:        core.RoleBotAdmin,
		Cooldown:    core.NoCooldown,
		Run:         runBan,
	}
	cmd.Run = core.Wrap(cmd.Run, core.WithMinArgs(1))
	return cmd
}

func Unban() *core.Command {
	cmd := &core.Command{
		Name:        "unban",
		Category:    categoryModeration,
		Description: "Lift a ban",
		Usage:       "unban <user>",
		Role:        core.RoleBotAdmin,
		Cooldown:    core.NoCooldown,
		Run:         runUnban,
	}
	cmd.Run = core.Wrap(cmd.Run, core.WithMinArgs(1))
	return cmd
}

func runBan(c *core.Context) error {
	target := core.NormalizeID(c.Args[0])
	p := c.State.Policy()
	switch {
	case target == "":
		_, err := c.Reply("That is not a valid user.")
		return err
	case target == c.Actor:
		_, err := c.Reply("You cannot ban yourself.")
		return err
	case p.IsAdmin(target):
		_, err := c.Reply("Bot admins cannot be banned.")
		return err
	case p.Banned.Has(target):
		_, err := c.Reply(fmt.Sprintf("%s is already banned.", target))
		return err
	}

	c.State.UpdatePolicy(func(p *core.Policy) { p.Banned.Add(target) })
	log := c.Logger()
	log.Info().Str("target", target).Msg("user banned")
	_, err := c.Reply(fmt.Sprintf("%s is now banned.", target))
	return err
}

func runUnban(c *core.Context) error {
	target := core.NormalizeID(c.Args[0])
	if !c.State.Policy().Banned.Has(target) {
		_, err := c.Reply(fmt.Sprintf("%s is not banned.", target))
		return err
	}
	c.State.UpdatePolicy(func(p *core.Policy) { p.Banned.Remove(target) })
	log := c.Logger()
	log.Info().Str("target", target).Msg("user unbanned")
	_, err := c.Reply(fmt.Sprintf("%s is no longer banned.", target))
	return err
}
