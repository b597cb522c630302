package auth

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"

	"vk-tg-mirror/pkg/telegoapi"
)

// ChannelChecker verifies that the bot account can post to a destination
// channel before any sync work starts.
type ChannelChecker struct {
	bot telegoapi.BotAPI
}

// NewChannelChecker creates a ChannelChecker. It requires a non-nil bot
// instance.
func NewChannelChecker(bot telegoapi.BotAPI) (*ChannelChecker, error) {
	if bot == nil {
		return nil, fmt.Errorf("bot instance cannot be nil")
	}
	return &ChannelChecker{bot: bot}, nil
}

// CanPost reports whether the bot is an administrator or creator of the
// channel, which is what posting to a broadcast channel requires.
func (c *ChannelChecker) CanPost(ctx context.Context, channelID int64) (bool, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return false, fmt.Errorf("get bot identity: %w", err)
	}
	member, err := c.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: channelID},
		UserID: me.ID,
	})
	if err != nil {
		return false, fmt.Errorf("get chat member info for channel %d: %w", channelID, err)
	}
	status := member.MemberStatus()
	return status == telego.MemberStatusCreator || status == telego.MemberStatusAdministrator, nil
}
