// Package ingest turns media uploaded by admins into share links.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot"
	"github.com/Oppen/mediabot/media"
	"github.com/Oppen/mediabot/metrics"
	"github.com/Oppen/mediabot/module"
)

const DeniedText = "⚠️ Only administrators can upload media."

// Documents with these MIME types are stored as gifs.
var gifMIMETypes = map[string]bool{
	"video/mp4": true,
	"image/gif": true,
}

// tokenAttempts bounds the retries on a token that is already taken.
const tokenAttempts = 3

var ErrTokenExhausted = errors.New("no free token")

type Ingest struct{}

func init() {
	module.RegisterModule(&Ingest{})
}

var _ module.Module = &Ingest{}
var _ module.MessageHandler = &Ingest{}

func (i *Ingest) Init(b *bot.Bot) error {
	if b.Media == nil {
		return errors.New("ingest needs the media library")
	}
	module.RegisterMessageHandler(i)
	module.RegisterCommandHandler("mediacount", &MediaCount{})
	module.RegisterCommandHandler("clearmedia", &ClearMedia{})
	return nil
}

// Upload is the part of a message that can become a record.
type Upload struct {
	FileID       string
	FileUniqueID string
	Kind         media.Kind
	Source       string
}

// Classify maps a message to the kind of record it would produce. Videos are
// videos; animations and mp4/gif documents are gifs; the rest is ignored.
func Classify(msg *tgbotapi.Message) (Upload, bool) {
	switch {
	case msg.Video != nil:
		return Upload{FileID: msg.Video.FileID, FileUniqueID: msg.Video.FileUniqueID, Kind: media.KindVideo}, true
	case msg.Animation != nil:
		return Upload{FileID: msg.Animation.FileID, FileUniqueID: msg.Animation.FileUniqueID, Kind: media.KindGIF, Source: media.SourceAnimation}, true
	case msg.Document != nil && gifMIMETypes[msg.Document.MimeType]:
		return Upload{FileID: msg.Document.FileID, FileUniqueID: msg.Document.FileUniqueID, Kind: media.KindGIF, Source: media.SourceDocument}, true
	}
	return Upload{}, false
}

func (i *Ingest) HandleMessage(_ context.Context, b *bot.Bot, u *tgbotapi.Update) {
	msg := u.Message
	if msg.Video == nil && msg.Animation == nil && msg.Document == nil {
		return
	}
	if !b.IsAdmin(msg.From.ID) {
		b.ReplyEphemeral(msg, DeniedText)
		return
	}

	rec, ok, err := Process(b, msg)
	switch {
	case err != nil:
		metrics.IngestFailures.Inc()
		b.Log.Error("media processing failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
	case ok:
		b.Log.Info("share link created",
			zap.String("token", rec.Token),
			zap.String("kind", string(rec.Kind)),
			zap.Int64("user_id", msg.From.ID))
	}
}

// Process stores msg's media under a new token and posts the share link to
// the staging group. ok is false when the message carries nothing storable.
func Process(b *bot.Bot, msg *tgbotapi.Message) (rec media.Record, ok bool, err error) {
	up, ok := Classify(msg)
	if !ok {
		return media.Record{}, false, nil
	}
	store, err := b.Media.StoreFor(up.Kind)
	if err != nil {
		return media.Record{}, false, err
	}

	token, err := freshToken(b.Media, up.FileUniqueID)
	if err != nil {
		return media.Record{}, false, err
	}
	rec = media.Record{
		Token:     token,
		FileID:    up.FileID,
		Kind:      up.Kind,
		ShareLink: media.ShareLink(b.Self.UserName, token),
		Source:    up.Source,
	}
	if err := store.Put(token, rec); err != nil {
		return rec, false, fmt.Errorf("store %s: %w", token, err)
	}
	metrics.Ingested.WithLabelValues(string(up.Kind)).Inc()

	if _, err := b.Send(tgbotapi.NewMessage(b.Config.TargetGroupID, rec.ShareLink)); err != nil {
		return rec, true, fmt.Errorf("publish share link %s: %w", token, err)
	}
	return rec, true, nil
}

// freshToken avoids tokens already used by either store, since the two
// stores are looked up one after the other.
func freshToken(lib *media.Library, fileUniqueID string) (string, error) {
	for i := 0; i < tokenAttempts; i++ {
		token := media.GenerateToken(fileUniqueID)
		if !lib.Contains(token) {
			return token, nil
		}
	}
	return "", ErrTokenExhausted
}
