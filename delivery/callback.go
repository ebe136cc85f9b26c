package delivery

import (
	"context"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
	"github.com/Oppen/mediabot/gate"
)

// HandleCallback serves the Refresh button of a gate prompt. Users may press
// it as often as they like.
func (d *Delivery) HandleCallback(ctx context.Context, b *bot.Bot, u *tgbotapi.Update) {
	cq := u.CallbackQuery
	log := b.Log.With(zap.Int64("user_id", cq.From.ID))

	status, err := d.gate.Lookup(cq.From.ID)
	if err != nil {
		log.Warn("membership refresh failed", zap.Error(err))
		d.answer(b, cq.ID, CheckErrorText, true)
		return
	}
	if !gate.Allowed(status) {
		d.answer(b, cq.ID, NotJoinedText, true)
		return
	}
	d.answer(b, cq.ID, "", false)

	prompt := cq.Message
	if prompt == nil || prompt.Chat == nil {
		return
	}
	// The prompt goes together with its expiry warning.
	if b.Expiry == nil || !b.Expiry.Flush(prompt.Chat.ID, prompt.MessageID) {
		if _, err := b.Request(tgbotapi.NewDeleteMessage(prompt.Chat.ID, prompt.MessageID)); err != nil {
			log.Warn("delete gate prompt failed", zap.Error(err))
		}
	}

	token := gate.TokenFromCallback(cq.Data)
	if token == "" {
		d.welcome(b, prompt.Chat.ID)
		return
	}
	replyTo := 0
	if prompt.ReplyToMessage != nil {
		replyTo = prompt.ReplyToMessage.MessageID
	}
	d.remember(ctx, b, cq.From)
	d.deliver(b, prompt.Chat.ID, replyTo, cq.From, token)
}

func (d *Delivery) answer(b *bot.Bot, id, text string, alert bool) {
	cb := tgbotapi.NewCallback(id, text)
	cb.ShowAlert = alert
	if _, err := b.Request(cb); err != nil {
		b.Log.Warn("answer callback failed", zap.Error(err))
	}
}
