package module

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
)

// Dispatch routes an update to its handler. Commands that take long are
// handed to batch, which reports whether it had room for them.
// A panicking handler is logged and the update dropped.
func Dispatch(ctx context.Context, b *bot.Bot, u *tgbotapi.Update, batch func(tgbotapi.Update) bool) {
	defer func() {
		if r := recover(); r != nil {
			b.Log.Error("handler panicked",
				zap.Int("update_id", u.UpdateID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	if cq := u.CallbackQuery; cq != nil {
		h, ok := GetCallbackHandler(cq.Data)
		if !ok {
			if _, err := b.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
				b.Log.Warn("answer callback failed", zap.Error(err))
			}
			return
		}
		h.HandleCallback(ctx, b, u)
		return
	}

	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	if date := time.Unix(int64(msg.Date), 0); bot.Expired(date, &b.Config.TTL) {
		b.Log.Debug("dropping expired update", zap.Int("update_id", u.UpdateID))
		return
	}

	if !msg.IsCommand() {
		for _, h := range MessageHandlers() {
			h.HandleMessage(ctx, b, u)
		}
		return
	}

	cmd := msg.Command()
	handler := GetCommandHandler(cmd)
	if handler.RequiresPrivileges() && !b.IsAdmin(msg.From.ID) {
		b.Log.Info("privileged command denied", zap.String("command", cmd), zap.Int64("user_id", msg.From.ID))
		b.ReplyEphemeral(msg, fmt.Sprintf("⚠️ Only administrators can use /%s.", cmd))
		return
	}
	if handler.TakesLong() {
		if !batch(*u) {
			b.ReplyEphemeral(msg, "The bot is busy, try again later.")
		}
		return
	}
	handler.HandleCommand(ctx, b, u)
}

// RunBatch executes a long-running command that Dispatch queued.
func RunBatch(ctx context.Context, b *bot.Bot, u *tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.Log.Error("batch handler panicked",
				zap.Int("update_id", u.UpdateID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	if u.Message == nil {
		return
	}
	GetCommandHandler(u.Message.Command()).HandleCommand(ctx, b, u)
}
