package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/keshon/chatdispatch/internal/core"
)

func mention(userID string) string { return "<@" + userID + ">" }

func displayName(u *discordgo.User, m *discordgo.Member) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// sender places the author id where ResolveActor expects it: participant in
// guild channels, chat id in direct messages.
func sender(guildID string, u *discordgo.User, m *discordgo.Member) core.Sender {
	if u == nil {
		return core.Sender{}
	}
	s := core.Sender{Name: displayName(u, m)}
	if guildID != "" {
		s.ParticipantID = u.ID
	} else {
		s.ChatID = u.ID
	}
	return s
}

func messageEvent(m *discordgo.MessageCreate, selfID string) *core.Event {
	if m == nil || m.Message == nil || m.Author == nil {
		return nil
	}
	ev := &core.Event{
		ID:       m.ID,
		ThreadID: m.ChannelID,
		IsGroup:  m.GuildID != "",
		FromMe:   m.Author.ID == selfID,
		Sender:   sender(m.GuildID, m.Author, m.Member),
		Kind:     core.KindText,
		Time:     m.Timestamp,
		Text:     m.Content,
		Raw:      m,
	}
	if len(m.Attachments) > 0 {
		ev.Kind = core.KindMedia
	}
	if ref := m.MessageReference; ref != nil && ev.Kind == core.KindText {
		ev.QuotedID = ref.MessageID
	}
	return ev
}

// reactionEvent skips reactions added by the bot itself.
func reactionEvent(r *discordgo.MessageReactionAdd, selfID string) *core.Event {
	if r == nil || r.MessageReaction == nil || r.UserID == selfID {
		return nil
	}
	u := &discordgo.User{ID: r.UserID}
	if r.Member != nil && r.Member.User != nil {
		u = r.Member.User
	}
	return &core.Event{
		ID:             r.MessageID + ":" + r.UserID,
		ThreadID:       r.ChannelID,
		IsGroup:        r.GuildID != "",
		Sender:         sender(r.GuildID, u, r.Member),
		Kind:           core.KindReaction,
		ReactionTarget: r.MessageID,
		Reaction:       emojiKey(r.Emoji),
		Raw:            r,
	}
}

// emojiKey is the unicode symbol for standard emoji and name:id for custom ones.
func emojiKey(e discordgo.Emoji) string {
	if e.ID == "" {
		return e.Name
	}
	return e.APIName()
}

// memberEvent maps guild membership changes onto the guild system channel.
// It returns nil when the guild has no system channel.
func memberEvent(kind core.Kind, m *discordgo.Member, systemChannelID, selfID string) *core.Event {
	if m == nil || m.User == nil || systemChannelID == "" {
		return nil
	}
	ev := &core.Event{
		ID:       string(kind) + ":" + m.GuildID + ":" + m.User.ID,
		ThreadID: systemChannelID,
		IsGroup:  true,
		FromMe:   m.User.ID == selfID,
		Sender:   sender(m.GuildID, m.User, m),
		Kind:     kind,
		Raw:      m,
	}
	if kind != core.KindContactUpdated {
		ev.Participants = []string{mention(m.User.ID)}
	}
	return ev
}

func inviteEvent(i *discordgo.InviteCreate, selfID string) *core.Event {
	if i == nil || i.Invite == nil {
		return nil
	}
	ev := &core.Event{
		ID:         "invite:" + i.Code,
		ThreadID:   i.ChannelID,
		IsGroup:    i.GuildID != "",
		Kind:       core.KindInviteReceived,
		InviteCode: i.Code,
		Raw:        i,
	}
	if i.Inviter != nil {
		ev.InviterID = i.Inviter.ID
		ev.FromMe = i.Inviter.ID == selfID
		ev.Sender = sender(i.GuildID, i.Inviter, nil)
	}
	return ev
}
