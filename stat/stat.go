package stat

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
	"github.com/Oppen/mediabot/module"
)

type Stat struct {
	module.AdminCommandHandler

	InitTime time.Time
}

func init() {
	module.RegisterModule(&Stat{})
}

var _ module.Module = &Stat{}
var _ module.CommandHandler = &Stat{}

func (s *Stat) Init(*bot.Bot) error {
	s.InitTime = time.Now()
	module.RegisterCommandHandler("stat", s)
	module.RegisterCommandHandler("help", &Help{})
	return nil
}

func (s *Stat) HandleCommand(_ context.Context, b *bot.Bot, u *tgbotapi.Update) {
	b.Log.Info("/stat", zap.Int64("user_id", u.Message.From.ID))
	if _, err := b.Reply(u.Message, s.Report(b)); err != nil {
		b.Log.Error("reply failed", zap.Error(err))
	}
}

// Report describes the process and what the bot is holding.
func (s *Stat) Report(b *bot.Bot) string {
	uptime := time.Since(s.InitTime).Truncate(time.Second)
	msgText := fmt.Sprintf("Uptime: %s\n", uptime)

	memStats := runtime.MemStats{}
	runtime.ReadMemStats(&memStats)
	msgText += fmt.Sprintf("Memory: %s\n", Bytes(memStats.HeapAlloc))
	msgText += fmt.Sprintf("Goroutines: %d\n", runtime.NumGoroutine())

	if b.Media != nil {
		videos, gifs := b.Media.Counts()
		msgText += fmt.Sprintf("Media: %d videos, %d gifs\n", videos, gifs)
	}
	if b.Expiry != nil {
		msgText += fmt.Sprintf("Pending deletions: %d\n", b.Expiry.Pending())
	}
	msgText += fmt.Sprintf("Modules: %s\n", strings.Join(module.Modules(), ", "))
	msgText += fmt.Sprintf("Commands: /%s", strings.Join(module.Commands(), ", /"))
	return msgText
}

// Bytes renders n with a unit that keeps at least two integer digits.
func Bytes(n uint64) string {
	switch {
	case n > 10*1024*1024*1024:
		return fmt.Sprintf("%.2fGB", float64(n)/(1024*1024*1024))
	case n > 10*1024*1024:
		return fmt.Sprintf("%.2fMB", float64(n)/(1024*1024))
	case n > 10*1024:
		return fmt.Sprintf("%.2fkB", float64(n)/1024)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func (s *Stat) Help() string {
	return "Tells whether the bot is alive, with statistics about the system and itself."
}

type Help struct {
	module.DefaultCommandHandler
}

func (Help) HandleCommand(_ context.Context, b *bot.Bot, u *tgbotapi.Update) {
	var sb strings.Builder
	for _, cmd := range module.Commands() {
		h := module.GetCommandHandler(cmd)
		if h.RequiresPrivileges() && !b.IsAdmin(u.Message.From.ID) {
			continue
		}
		fmt.Fprintf(&sb, "/%s: %s\n", cmd, h.Help())
	}
	if _, err := b.Reply(u.Message, strings.TrimSuffix(sb.String(), "\n")); err != nil {
		b.Log.Error("reply failed", zap.Error(err))
	}
}

func (Help) Help() string {
	return "Lists the commands you can use."
}
