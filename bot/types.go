package bot

import (
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/expiry"
	"github.com/Oppen/mediabot/media"
	"github.com/Oppen/mediabot/users"
)

// API is the part of *tgbotapi.BotAPI the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	// MakeRequest reaches the parameters the Chattable configs don't expose.
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

var _ API = (*tgbotapi.BotAPI)(nil)

type Bot struct {
	API
	// Self is the bot's own account, its username goes into share links.
	Self   tgbotapi.User
	Config Config
	Log    *zap.Logger

	Media  *media.Library
	Users  users.Directory
	Expiry *expiry.Scheduler

	admins map[int64]struct{}
}

// New assembles a Bot. The admin allow-list is taken from cfg.
func New(api API, self tgbotapi.User, cfg Config, log *zap.Logger) *Bot {
	b := &Bot{
		API:    api,
		Self:   self,
		Config: cfg,
		Log:    log,
		admins: make(map[int64]struct{}, len(cfg.Admins)),
	}
	for _, id := range cfg.Admins {
		b.admins[id] = struct{}{}
	}
	return b
}
