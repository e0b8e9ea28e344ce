// Package discord implements the notify Adapter for Discord.
package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/davisfield/switchboard/internal/notify"
)

// discordSession abstracts the discordgo methods we use, enabling test mocks.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Adapter posts notices to one Discord channel.
type Adapter struct {
	sess      discordSession
	channelID string
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post to
	// For testing: inject a mock session instead of a real one.
	Session discordSession
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel id is required")
	}
	a := &Adapter{channelID: opts.ChannelID}
	if opts.Session != nil {
		a.sess = opts.Session
	} else {
		sess, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: session: %w", err)
		}
		a.sess = sess
	}
	return a, nil
}

// Name implements notify.Adapter.
func (a *Adapter) Name() string { return "discord" }

// Post delivers the notice as an embed with a severity-colored stripe.
func (a *Adapter) Post(ctx context.Context, n notify.Notice) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("discord: post: %w", err)
	}
	if _, err := a.sess.ChannelMessageSendEmbed(a.channelID, toEmbed(n)); err != nil {
		return fmt.Errorf("discord: post: %w", err)
	}
	return nil
}

func toEmbed(n notify.Notice) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Body,
		Color:       hexToColor(notify.SeverityColor(n.Severity)),
	}
	for _, f := range n.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: true,
		})
	}
	return embed
}

// hexToColor converts a "#rrggbb" hint to Discord's integer color.
func hexToColor(hex string) int {
	v, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}
