package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/chatdispatch/internal/core"
	"github.com/keshon/chatdispatch/pkg/retrylimit"
)

// maxMessageLen is Discord's content limit per message, in characters.
const maxMessageLen = 2000

// restAPI is the part of *discordgo.Session the transport calls.
type restAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

// Transport implements core.Transport over a Discord session.
type Transport struct {
	api   restAPI
	state *discordgo.State
	lim   *retrylimit.AdaptiveLimiter
	retry retrylimit.Config
	log   zerolog.Logger

	mu     sync.RWMutex
	selfID string
}

// NewTransport paces sends at sendRate messages per second, slowing down
// when Discord throttles.
func NewTransport(api restAPI, state *discordgo.State, sendRate float64, log zerolog.Logger) *Transport {
	r := rate.Limit(sendRate)
	retry := retrylimit.DefaultConfig()
	retry.Classify = retrylimit.StatusClassifier(restStatus)
	retry.Logger = log
	return &Transport{
		api:   api,
		state: state,
		lim:   retrylimit.NewAdaptiveLimiter(r, r/4, r*2, 0.5, 0.5),
		retry: retry,
		log:   log,
	}
}

// restStatus extracts the HTTP status of a failed REST call.
func restStatus(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return 0
}

func (t *Transport) setSelf(id string) {
	t.mu.Lock()
	t.selfID = id
	t.mu.Unlock()
}

func (t *Transport) self() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selfID
}

// Send posts text to a channel, split into several messages when longer than
// Discord allows. Only the first part quotes opts.QuoteID. The id of the last
// message is returned.
func (t *Transport) Send(ctx context.Context, channelID, text string, opts core.SendOptions) (string, error) {
	var id string
	for i, part := range splitMessage(text, maxMessageLen) {
		data := &discordgo.MessageSend{Content: part}
		if i == 0 && opts.QuoteID != "" {
			data.Reference = &discordgo.MessageReference{MessageID: opts.QuoteID, ChannelID: channelID}
		}
		err := retrylimit.Do(ctx, t.lim, t.retry, func(ctx context.Context) error {
			msg, err := t.api.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
			if err != nil {
				return err
			}
			id = msg.ID
			return nil
		})
		if err != nil {
			return id, fmt.Errorf("send to %s: %w", channelID, err)
		}
	}
	return id, nil
}

func (t *Transport) ThreadInfo(ctx context.Context, channelID string) (*core.ThreadInfo, error) {
	ch, err := t.channel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("thread info %s: %w", channelID, err)
	}
	info := &core.ThreadInfo{ID: channelID, Name: ch.Name, SelfID: t.self()}
	if ch.GuildID == "" {
		return info, nil
	}

	g, err := t.guild(ctx, ch.GuildID)
	if err != nil {
		return nil, fmt.Errorf("thread info %s: guild %s: %w", channelID, ch.GuildID, err)
	}
	info.IsGroup = true
	info.Name = g.Name
	info.Admins = guildAdmins(g)
	return info, nil
}

// AcceptInvite is unsupported: bot accounts join guilds through OAuth only.
func (t *Transport) AcceptInvite(context.Context, *core.Event) error {
	return core.ErrUnsupported
}

// RejectCall is unsupported: bots never receive calls.
func (t *Transport) RejectCall(context.Context, *core.Event) error {
	return core.ErrUnsupported
}

func (t *Transport) channel(ctx context.Context, id string) (*discordgo.Channel, error) {
	if t.state != nil {
		if ch, err := t.state.Channel(id); err == nil {
			return ch, nil
		}
	}
	return t.api.Channel(id, discordgo.WithContext(ctx))
}

func (t *Transport) guild(ctx context.Context, id string) (*discordgo.Guild, error) {
	if t.state != nil {
		if g, err := t.state.Guild(id); err == nil {
			return g, nil
		}
	}
	return t.api.Guild(id, discordgo.WithContext(ctx))
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
