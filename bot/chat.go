package bot

import (
	"fmt"
	"html"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) IsAdmin(userID int64) bool {
	_, ok := b.admins[userID]
	return ok
}

// Reply answers msg in its chat.
func (b *Bot) Reply(msg *tgbotapi.Message, text string) (tgbotapi.Message, error) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	return b.Send(reply)
}

// Expire hands a sent message to the expiry scheduler. Failures are logged.
func (b *Bot) Expire(sent tgbotapi.Message) {
	if b.Expiry == nil {
		return
	}
	if _, err := b.Expiry.Expire(sent); err != nil {
		b.Log.Warn("schedule expiry failed", zap.Int("message_id", sent.MessageID), zap.Error(err))
	}
}

// ReplyEphemeral answers msg and schedules the answer for deletion.
func (b *Bot) ReplyEphemeral(msg *tgbotapi.Message, text string) {
	sent, err := b.Reply(msg, text)
	if err != nil {
		b.Log.Error("reply failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		return
	}
	b.Expire(sent)
}

// Audit posts an HTML-formatted line to the operator log channel, if any.
func (b *Bot) Audit(text string) {
	if b.Config.LoggerChannelID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(b.Config.LoggerChannelID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.Send(msg); err != nil {
		b.Log.Error("audit log failed", zap.Error(err))
	}
}

// Mention is an HTML link to u for audit lines.
func Mention(u *tgbotapi.User) string {
	if u == nil {
		return "unknown"
	}
	name := u.FirstName
	if name == "" {
		name = u.UserName
	}
	if name == "" {
		name = fmt.Sprint(u.ID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.ID, html.EscapeString(name))
}
