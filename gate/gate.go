// Package gate decides whether a user may receive media: only members of
// the required channel do.
package gate

import (
	"fmt"
	"strings"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// CallbackPrefix marks the Refresh button of a gate prompt.
const CallbackPrefix = "check_membership"

const (
	StatusMember        = "member"
	StatusAdministrator = "administrator"
	StatusCreator       = "creator"
)

type MemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

type Checker struct {
	api     MemberGetter
	channel string
	log     *zap.Logger
}

func NewChecker(api MemberGetter, channel string, log *zap.Logger) *Checker {
	return &Checker{api: api, channel: strings.TrimPrefix(channel, "@"), log: log}
}

func (c *Checker) Channel() string {
	return c.channel
}

// Lookup returns the user's status in the channel.
func (c *Checker) Lookup(userID int64) (string, error) {
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: "@" + c.channel,
			UserID:             userID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("membership of %d in @%s: %w", userID, c.channel, err)
	}
	return member.Status, nil
}

// IsMember fails closed: lookup errors count as not being a member.
func (c *Checker) IsMember(userID int64) bool {
	status, err := c.Lookup(userID)
	if err != nil {
		c.log.Warn("membership check failed", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	return Allowed(status)
}

func Allowed(status string) bool {
	switch status {
	case StatusMember, StatusAdministrator, StatusCreator:
		return true
	}
	return false
}

// PromptText is shown to users that still have to join.
func PromptText(channel string) string {
	return "🔒 Channel Membership Required\n\n" +
		fmt.Sprintf("- Join @%s to use the bot\n", channel) +
		"- Click the \"✅ Join Channel\" button below to join the channel\n" +
		"- After joining, click the \"🔄 Refresh\" button"
}

// CallbackData encodes the token a Refresh press should retry.
func CallbackData(token string) string {
	if token == "" {
		return CallbackPrefix
	}
	return CallbackPrefix + ":" + token
}

// TokenFromCallback is the inverse of CallbackData.
func TokenFromCallback(data string) string {
	_, token, _ := strings.Cut(data, ":")
	return token
}

func ChannelURL(channel string) string {
	return "https://t.me/" + channel
}

// PromptMarkup has a join button and a refresh button for token.
func PromptMarkup(channel, token string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("✅ Join Channel", ChannelURL(channel)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", CallbackData(token)),
		),
	)
}
