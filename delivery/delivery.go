// Package delivery redeems share links: /start <token> sends the stored
// media to channel members and lets it expire.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
	"github.com/Oppen/mediabot/gate"
	"github.com/Oppen/mediabot/media"
	"github.com/Oppen/mediabot/metrics"
	"github.com/Oppen/mediabot/module"
	"github.com/Oppen/mediabot/users"
)

const (
	InvalidLinkText = "Invalid or expired media link."
	ErrorText       = "Sorry, there was an error processing your request."
	NotJoinedText   = "You haven't joined the channel yet!"
	CheckErrorText  = "Error checking membership. Please try again."
)

type Delivery struct {
	module.DefaultCommandHandler

	gate *gate.Checker
}

func init() {
	module.RegisterModule(&Delivery{})
}

var _ module.Module = &Delivery{}
var _ module.CommandHandler = &Delivery{}
var _ module.CallbackHandler = &Delivery{}

func (d *Delivery) Init(b *bot.Bot) error {
	if b.Media == nil || b.Users == nil {
		return errors.New("delivery needs the media library and the user directory")
	}
	d.gate = gate.NewChecker(b, b.Config.ChannelUsername, b.Log.Named("gate"))
	module.RegisterCommandHandler("start", d)
	module.RegisterCallbackHandler(gate.CallbackPrefix, d)
	return nil
}

func (d *Delivery) Help() string {
	return "Shows the welcome screen, or sends the media behind a share link."
}

func (d *Delivery) HandleCommand(ctx context.Context, b *bot.Bot, u *tgbotapi.Update) {
	msg := u.Message
	created := d.remember(ctx, b, msg.From)

	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		if created {
			b.Audit(fmt.Sprintf("🆕 New User Started Bot\n👤 User: %s\n🆔 ID: <code>%d</code>",
				bot.Mention(msg.From), msg.From.ID))
		}
		d.welcome(b, msg.Chat.ID)
		return
	}

	if !d.checkMember(msg.From.ID) {
		d.prompt(b, msg.Chat.ID, msg.MessageID, token)
		return
	}
	d.deliver(b, msg.Chat.ID, msg.MessageID, msg.From, token)
}

func (d *Delivery) remember(ctx context.Context, b *bot.Bot, from *tgbotapi.User) bool {
	created, err := b.Users.Upsert(ctx, users.Record{UserID: from.ID, Username: from.UserName})
	if err != nil {
		b.Log.Error("store user failed", zap.Int64("user_id", from.ID), zap.Error(err))
		return false
	}
	return created
}

func (d *Delivery) checkMember(userID int64) bool {
	ok := d.gate.IsMember(userID)
	if ok {
		metrics.MembershipChecks.WithLabelValues("member").Inc()
	} else {
		metrics.MembershipChecks.WithLabelValues("not_member").Inc()
	}
	return ok
}

func (d *Delivery) welcome(b *bot.Bot, chatID int64) {
	row := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonURL("📢 Join Channel", gate.ChannelURL(d.gate.Channel())),
	}
	if link := b.Config.GroupInviteLink; link != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("👥 Join Group", link))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)

	text := fmt.Sprintf("My name is %s. I provide all kinds of content to our members without any cost. "+
		"Just visit the group, click on the links and get the videos.", b.Self.FirstName)

	var c tgbotapi.Chattable
	if photo := b.Config.WelcomePhotoURL; photo != "" {
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photo))
		p.Caption = text
		p.ReplyMarkup = markup
		c = p
	} else {
		m := tgbotapi.NewMessage(chatID, text)
		m.ReplyMarkup = markup
		c = m
	}
	if _, err := b.Send(c); err != nil {
		b.Log.Error("welcome failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Delivery) prompt(b *bot.Bot, chatID int64, replyTo int, token string) {
	metrics.Deliveries.WithLabelValues("gated").Inc()
	// Callback data is capped at 64 bytes; anything else is not a link anyway.
	if !media.ValidToken(token) {
		token = ""
	}
	msg := tgbotapi.NewMessage(chatID, gate.PromptText(d.gate.Channel()))
	msg.ReplyToMessageID = replyTo
	msg.AllowSendingWithoutReply = true
	msg.ReplyMarkup = gate.PromptMarkup(d.gate.Channel(), token)
	sent, err := b.Send(msg)
	if err != nil {
		b.Log.Error("gate prompt failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	b.Expire(sent)
}

// deliver sends the media behind token to a user who passed the gate.
func (d *Delivery) deliver(b *bot.Bot, chatID int64, replyTo int, from *tgbotapi.User, token string) {
	log := b.Log.With(zap.Int64("user_id", from.ID), zap.String("token", token))

	var rec media.Record
	ok := media.ValidToken(token)
	if ok {
		rec, ok = b.Media.Resolve(token)
	}
	if !ok {
		metrics.Deliveries.WithLabelValues("invalid").Inc()
		log.Info("invalid media link")
		d.notice(b, chatID, replyTo, InvalidLinkText)
		b.Audit(fmt.Sprintf("⚠️ Invalid Media Access Attempt\n👤 User: %s\n🆔 ID: <code>%d</code>\n🔗 Attempted Link: %s",
			bot.Mention(from), from.ID, html.EscapeString(token)))
		return
	}

	b.Audit(fmt.Sprintf("📥 Media Accessed\n👤 User: %s\n🆔 ID: <code>%d</code>\n🔗 Link: %s\n📋 Type: %s",
		bot.Mention(from), from.ID, html.EscapeString(rec.ShareLink), rec.Kind))

	sent, err := SendMedia(b, chatID, replyTo, rec)
	if err != nil {
		metrics.Deliveries.WithLabelValues("failed").Inc()
		log.Error("media send failed", zap.String("kind", string(rec.Kind)), zap.Error(err))
		d.notice(b, chatID, replyTo, ErrorText)
		return
	}
	metrics.Deliveries.WithLabelValues("delivered").Inc()
	log.Info("media delivered", zap.String("kind", string(rec.Kind)))
	b.Expire(sent)
}

func (d *Delivery) notice(b *bot.Bot, chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.AllowSendingWithoutReply = true
	sent, err := b.Send(msg)
	if err != nil {
		b.Log.Error("notice failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	b.Expire(sent)
}

// MediaRequest builds the protected resend of rec. The Chattable configs
// have no protect_content, so the request is assembled by hand.
func MediaRequest(chatID int64, replyTo int, rec media.Record) (endpoint string, params tgbotapi.Params) {
	params = make(tgbotapi.Params)
	params.AddNonZero64("chat_id", chatID)
	params.AddBool("protect_content", true)
	params.AddNonZero("reply_to_message_id", replyTo)
	params.AddBool("allow_sending_without_reply", true)

	switch {
	case rec.Kind == media.KindVideo:
		params["video"] = rec.FileID
		params.AddBool("supports_streaming", true)
		return "sendVideo", params
	case rec.IsDocument():
		params["document"] = rec.FileID
		return "sendDocument", params
	default:
		params["animation"] = rec.FileID
		return "sendAnimation", params
	}
}

// SendMedia sends rec to chatID and returns the message Telegram created.
func SendMedia(api bot.API, chatID int64, replyTo int, rec media.Record) (tgbotapi.Message, error) {
	endpoint, params := MediaRequest(chatID, replyTo, rec)
	resp, err := api.MakeRequest(endpoint, params)
	if err != nil {
		return tgbotapi.Message{}, err
	}
	var msg tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return tgbotapi.Message{}, fmt.Errorf("%s result: %w", endpoint, err)
	}
	return msg, nil
}
