package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
	"github.com/Oppen/mediabot/module"
)

const (
	NoReferenceText = "Please reply to a message to broadcast it."
	UnsupportedText = "This message type cannot be broadcast."
	NoUsersText     = "No users found in database."
	BusyText        = "A broadcast is already running."
	ErrorText       = "❌ Error during broadcast. Check the logs."
)

type Command struct {
	module.AdminCommandHandler

	engine *Engine
}

func init() {
	module.RegisterModule(&Command{})
}

var _ module.Module = &Command{}
var _ module.CommandHandler = &Command{}

func (c *Command) Init(b *bot.Bot) error {
	if b.Users == nil {
		return errors.New("broadcast needs the user directory")
	}
	cfg := b.Config.Broadcast
	c.engine = NewEngine(b, b.Users, Options{
		Workers:       cfg.Workers,
		Rate:          cfg.Rate,
		SendTimeout:   cfg.SendTimeout,
		ProgressEvery: cfg.ProgressEvery,
	}, b.Log.Named("broadcast"))
	module.RegisterCommandHandler("broadcast", c)
	return nil
}

func (c *Command) Help() string {
	return "Reply to a message with /broadcast to send a copy to every user."
}

func (c *Command) TakesLong() bool {
	return true
}

func (c *Command) HandleCommand(ctx context.Context, b *bot.Bot, u *tgbotapi.Update) {
	msg := u.Message
	var status tgbotapi.Message
	hooks := Hooks{
		Started: func(total int) {
			var err error
			status, err = b.Reply(msg, fmt.Sprintf("Starting broadcast to %d users...", total))
			if err != nil {
				b.Log.Error("reply failed", zap.Error(err))
			}
		},
		Progress: func(r Result) {
			edit(b, status, ProgressText(r))
		},
	}

	b.Log.Info("broadcast requested", zap.Int64("user_id", msg.From.ID))
	res, err := c.engine.Run(ctx, msg.ReplyToMessage, hooks)
	switch {
	case errors.Is(err, ErrNoReference):
		c.reply(b, msg, NoReferenceText)
		return
	case errors.Is(err, ErrUnsupported):
		c.reply(b, msg, UnsupportedText)
		return
	case errors.Is(err, ErrNoUsers):
		c.reply(b, msg, NoUsersText)
		return
	case errors.Is(err, ErrBusy):
		c.reply(b, msg, BusyText)
		return
	case err != nil && res.Total == 0:
		b.Log.Error("broadcast failed", zap.Error(err))
		c.reply(b, msg, ErrorText)
		return
	case err != nil:
		b.Log.Warn("broadcast stopped early", zap.Error(err))
	}

	b.Log.Info("broadcast finished",
		zap.Int("total", res.Total),
		zap.Int("success", res.Success),
		zap.Int("failed", res.Failed),
		zap.Int("blocked", res.Blocked),
		zap.Duration("duration", res.Duration),
		zap.Bool("interrupted", res.Interrupted))
	edit(b, status, FinalText(res))
	b.Audit(AuditText(msg.From, res))
}

func (c *Command) reply(b *bot.Bot, msg *tgbotapi.Message, text string) {
	if _, err := b.Reply(msg, text); err != nil {
		b.Log.Error("reply failed", zap.Error(err))
	}
}

// edit rewrites the status message. Nothing happens if it was never sent.
func edit(b *bot.Bot, status tgbotapi.Message, text string) {
	if status.Chat == nil {
		return
	}
	if _, err := b.Send(tgbotapi.NewEditMessageText(status.Chat.ID, status.MessageID, text)); err != nil {
		b.Log.Warn("status edit failed", zap.Error(err))
	}
}

func ProgressText(r Result) string {
	return fmt.Sprintf("Broadcast in progress...\n"+
		"✅ Success: %d\n"+
		"❌ Failed: %d\n"+
		"🚫 Blocked: %d\n"+
		"📊 Progress: %.1f%%",
		r.Success, r.Failed, r.Blocked, r.Percent())
}

func FinalText(r Result) string {
	var sb strings.Builder
	if r.Interrupted {
		fmt.Fprintf(&sb, "⚠️ Broadcast Interrupted!\n\nProcessed: %d of %d\n", r.Processed(), r.Total)
	} else {
		fmt.Fprintf(&sb, "✅ Broadcast Completed!\n\nTotal users: %d\n", r.Total)
	}
	fmt.Fprintf(&sb, "✅ Successful: %d\n❌ Failed: %d\n🚫 Blocked: %d\n⏱ Duration: %d seconds",
		r.Success, r.Failed, r.Blocked, int(r.Duration.Seconds()))
	return sb.String()
}

// AuditText is HTML for the log channel.
func AuditText(by *tgbotapi.User, r Result) string {
	title := "📢 Broadcast Completed"
	if r.Interrupted {
		title = "📢 Broadcast Interrupted"
	}
	return fmt.Sprintf("%s\n👤 By: %s\n📊 Stats:\n"+
		"- Total: %d\n- Success: %d\n- Failed: %d\n- Blocked: %d\n"+
		"⏱ Duration: %ds",
		title, bot.Mention(by),
		r.Total, r.Success, r.Failed, r.Blocked, int(r.Duration.Seconds()))
}
