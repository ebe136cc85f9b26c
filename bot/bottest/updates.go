package bottest

import (
	"strings"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var nextUpdate = 1

func user(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: "User", UserName: "user"}
}

// Message builds a private chat message from userID.
func Message(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      user(userID),
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Date:      int(time.Now().Unix()),
		Text:      text,
	}
}

// Command builds an update carrying text, whose first word is a command.
func Command(userID int64, text string) *tgbotapi.Update {
	msg := Message(userID, text)
	cmd, _, _ := strings.Cut(text, " ")
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	nextUpdate++
	return &tgbotapi.Update{UpdateID: nextUpdate, Message: msg}
}

// Update wraps msg.
func Update(msg *tgbotapi.Message) *tgbotapi.Update {
	nextUpdate++
	return &tgbotapi.Update{UpdateID: nextUpdate, Message: msg}
}

// Callback builds an inline button press by userID on prompt.
func Callback(userID int64, prompt *tgbotapi.Message, data string) *tgbotapi.Update {
	nextUpdate++
	return &tgbotapi.Update{
		UpdateID: nextUpdate,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-" + data,
			From:    user(userID),
			Message: prompt,
			Data:    data,
		},
	}
}
