package ingest

import (
	"context"
	"fmt"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
	"github.com/Oppen/mediabot/module"
)

type MediaCount struct {
	module.AdminCommandHandler
}

func (MediaCount) HandleCommand(_ context.Context, b *bot.Bot, u *tgbotapi.Update) {
	videos, gifs := b.Media.Counts()
	text := fmt.Sprintf("Total GIF media stored: %d\nTotal Video media stored: %d", gifs, videos)
	if _, err := b.Reply(u.Message, text); err != nil {
		b.Log.Error("reply failed", zap.Error(err))
	}
}

func (MediaCount) Help() string {
	return "Counts the stored videos and gifs."
}

type ClearMedia struct {
	module.AdminCommandHandler
}

func (ClearMedia) HandleCommand(_ context.Context, b *bot.Bot, u *tgbotapi.Update) {
	// Memory is cleared even if saving fails.
	if err := b.Media.ClearAll(); err != nil {
		b.Log.Error("clear media failed", zap.Error(err))
	}
	b.Log.Info("media cleared", zap.Int64("user_id", u.Message.From.ID))
	if _, err := b.Reply(u.Message, "All media links cleared."); err != nil {
		b.Log.Error("reply failed", zap.Error(err))
	}
}

func (ClearMedia) Help() string {
	return "Forgets every share link."
}
