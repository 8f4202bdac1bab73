// Package discord connects the dispatch engine to a Discord bot account.
package discord

import (
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/chatdispatch/internal/config"
	"github.com/keshon/chatdispatch/internal/core"
)

// Dispatcher receives every converted event.
type Dispatcher interface {
	Handle(ctx context.Context, ev *core.Event) core.Outcome
}

// Bot owns the gateway session. Its Transport is handed to the engine
// before Run starts delivering events.
type Bot struct {
	dg        *discordgo.Session
	cfg       *config.Config
	log       zerolog.Logger
	transport *Transport
}

func New(cfg *config.Config, log zerolog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildInvites |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsDirectMessageReactions |
		discordgo.IntentsMessageContent
	dg.State.TrackMembers = true

	log = log.With().Str("transport", "discord").Logger()
	return &Bot{
		dg:        dg,
		cfg:       cfg,
		log:       log,
		transport: NewTransport(dg, dg.State, cfg.SendRate, log),
	}, nil
}

func (b *Bot) Transport() *Transport { return b.transport }

// Run opens the gateway, feeds events to d and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context, d Dispatcher) error {
	dispatch := func(ev *core.Event) {
		if ev == nil {
			return
		}
		out := d.Handle(ctx, ev)
		b.log.Debug().
			Str("kind", string(ev.Kind)).
			Str("thread", ev.ThreadID).
			Stringer("status", out.Status).
			Msg("event handled")
	}

	b.dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.transport.setSelf(r.User.ID)
		for _, g := range r.Guilds {
			b.leaveIfBlacklisted(s, g.ID, g.Name)
		}
		b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord bot is running")
	})
	b.dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		b.leaveIfBlacklisted(s, g.ID, g.Name)
	})
	b.dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		dispatch(messageEvent(m, b.transport.self()))
	})
	b.dg.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		dispatch(reactionEvent(r, b.transport.self()))
	})
	b.dg.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		dispatch(memberEvent(core.KindMembershipJoined, m.Member, b.systemChannel(m.GuildID), b.transport.self()))
	})
	b.dg.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
		dispatch(memberEvent(core.KindMembershipLeft, m.Member, b.systemChannel(m.GuildID), b.transport.self()))
	})
	b.dg.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
		dispatch(memberEvent(core.KindContactUpdated, m.Member, b.systemChannel(m.GuildID), b.transport.self()))
	})
	b.dg.AddHandler(func(s *discordgo.Session, i *discordgo.InviteCreate) {
		dispatch(inviteEvent(i, b.transport.self()))
	})

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing session")
	return nil
}

func (b *Bot) systemChannel(guildID string) string {
	g, err := b.dg.State.Guild(guildID)
	if err != nil || g == nil {
		return ""
	}
	return g.SystemChannelID
}

func (b *Bot) leaveIfBlacklisted(s *discordgo.Session, guildID, name string) {
	if !slices.Contains(b.cfg.GuildBlacklist, guildID) {
		return
	}
	b.log.Info().Str("guild", guildID).Str("name", name).Msg("leaving blacklisted guild")
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error().Err(err).Str("guild", guildID).Msg("failed to leave guild")
	}
}
