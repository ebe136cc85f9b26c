package broadcast

import (
	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Payload builds the copy of ref to send to chatID. The first of text, photo,
// video, audio, document, animation, sticker, voice and video note present
// in ref wins. ok is false when ref carries none of them.
func Payload(ref *tgbotapi.Message, chatID int64) (c tgbotapi.Chattable, ok bool) {
	if ref == nil {
		return nil, false
	}
	switch {
	case ref.Text != "":
		m := tgbotapi.NewMessage(chatID, ref.Text)
		m.Entities = ref.Entities
		quiet(&m.BaseChat, ref)
		return m, true

	case len(ref.Photo) > 0:
		// Sizes come smallest first.
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(ref.Photo[len(ref.Photo)-1].FileID))
		p.Caption, p.CaptionEntities = ref.Caption, ref.CaptionEntities
		quiet(&p.BaseChat, ref)
		return p, true

	case ref.Video != nil:
		v := tgbotapi.NewVideo(chatID, tgbotapi.FileID(ref.Video.FileID))
		v.Caption, v.CaptionEntities = ref.Caption, ref.CaptionEntities
		quiet(&v.BaseChat, ref)
		return v, true

	case ref.Audio != nil:
		a := tgbotapi.NewAudio(chatID, tgbotapi.FileID(ref.Audio.FileID))
		a.Caption, a.CaptionEntities = ref.Caption, ref.CaptionEntities
		quiet(&a.BaseChat, ref)
		return a, true

	case ref.Document != nil:
		d := tgbotapi.NewDocument(chatID, tgbotapi.FileID(ref.Document.FileID))
		d.Caption, d.CaptionEntities = ref.Caption, ref.CaptionEntities
		quiet(&d.BaseChat, ref)
		return d, true

	case ref.Animation != nil:
		a := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(ref.Animation.FileID))
		a.Caption, a.CaptionEntities = ref.Caption, ref.CaptionEntities
		quiet(&a.BaseChat, ref)
		return a, true

	case ref.Sticker != nil:
		s := tgbotapi.NewSticker(chatID, tgbotapi.FileID(ref.Sticker.FileID))
		quiet(&s.BaseChat, ref)
		return s, true

	case ref.Voice != nil:
		v := tgbotapi.NewVoice(chatID, tgbotapi.FileID(ref.Voice.FileID))
		v.Caption, v.CaptionEntities = ref.Caption, ref.CaptionEntities
		quiet(&v.BaseChat, ref)
		return v, true

	case ref.VideoNote != nil:
		n := tgbotapi.NewVideoNote(chatID, ref.VideoNote.Length, tgbotapi.FileID(ref.VideoNote.FileID))
		quiet(&n.BaseChat, ref)
		return n, true
	}
	return nil, false
}

// quiet suppresses the notification and carries over the inline keyboard.
func quiet(bc *tgbotapi.BaseChat, ref *tgbotapi.Message) {
	bc.DisableNotification = true
	if ref.ReplyMarkup != nil {
		bc.ReplyMarkup = *ref.ReplyMarkup
	}
}
