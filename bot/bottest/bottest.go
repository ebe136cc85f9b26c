// Package bottest provides a recording stand-in for the Telegram Bot API.
package bottest

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API records every Chattable it is given. Message ids are handed out in
// increasing order starting at 1000.
type API struct {
	mx       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	raw      []RawRequest
	nextID   int

	// SendHook, if set, runs before a Send is recorded. A non-nil error is
	// returned to the caller and the Chattable is not recorded.
	SendHook func(c tgbotapi.Chattable) error
	// RequestHook does the same for Request.
	RequestHook func(c tgbotapi.Chattable) error
	// RawHook does the same for MakeRequest.
	RawHook func(endpoint string, params tgbotapi.Params) error

	// Members maps user ids to their status in any chat. Unknown users make
	// GetChatMember fail.
	Members   map[int64]string
	MemberErr error
}

func New() *API {
	return &API{nextID: 1000, Members: make(map[int64]string)}
}

func ChatID(c tgbotapi.Chattable) int64 {
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		return v.ChatID
	case tgbotapi.PhotoConfig:
		return v.ChatID
	case tgbotapi.VideoConfig:
		return v.ChatID
	case tgbotapi.AudioConfig:
		return v.ChatID
	case tgbotapi.DocumentConfig:
		return v.ChatID
	case tgbotapi.AnimationConfig:
		return v.ChatID
	case tgbotapi.StickerConfig:
		return v.ChatID
	case tgbotapi.VoiceConfig:
		return v.ChatID
	case tgbotapi.VideoNoteConfig:
		return v.ChatID
	case tgbotapi.EditMessageTextConfig:
		return v.ChatID
	case tgbotapi.DeleteMessageConfig:
		return v.ChatID
	}
	return 0
}

func (a *API) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if a.SendHook != nil {
		if err := a.SendHook(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	a.sent = append(a.sent, c)
	a.nextID++
	msg := tgbotapi.Message{
		MessageID: a.nextID,
		Chat:      &tgbotapi.Chat{ID: ChatID(c)},
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		msg.Text = m.Text
	}
	return msg, nil
}

func (a *API) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if a.RequestHook != nil {
		if err := a.RequestHook(c); err != nil {
			return nil, err
		}
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	a.requests = append(a.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// RawRequest is a call to MakeRequest.
type RawRequest struct {
	Endpoint string
	Params   tgbotapi.Params
}

// MakeRequest records the call and answers with a message in the chat named
// by the chat_id parameter.
func (a *API) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	if a.RawHook != nil {
		if err := a.RawHook(endpoint, params); err != nil {
			return nil, err
		}
	}
	chatID, _ := strconv.ParseInt(params["chat_id"], 10, 64)

	a.mx.Lock()
	a.raw = append(a.raw, RawRequest{Endpoint: endpoint, Params: params})
	a.nextID++
	msg := tgbotapi.Message{MessageID: a.nextID, Chat: &tgbotapi.Chat{ID: chatID}}
	a.mx.Unlock()

	result, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &tgbotapi.APIResponse{Ok: true, Result: result}, nil
}

// Raw returns a copy of every MakeRequest call, optionally only those to
// the given endpoints.
func (a *API) Raw(endpoints ...string) []RawRequest {
	a.mx.Lock()
	defer a.mx.Unlock()
	var out []RawRequest
	for _, r := range a.raw {
		if len(endpoints) == 0 {
			out = append(out, r)
			continue
		}
		for _, e := range endpoints {
			if r.Endpoint == e {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (a *API) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.MemberErr != nil {
		return tgbotapi.ChatMember{}, a.MemberErr
	}
	status, ok := a.Members[cfg.UserID]
	if !ok {
		return tgbotapi.ChatMember{}, &tgbotapi.Error{Code: 400, Message: "Bad Request: user not found"}
	}
	return tgbotapi.ChatMember{User: &tgbotapi.User{ID: cfg.UserID}, Status: status}, nil
}

func (a *API) SetMember(userID int64, status string) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.Members[userID] = status
}

// Sent returns a copy of everything passed to Send.
func (a *API) Sent() []tgbotapi.Chattable {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]tgbotapi.Chattable(nil), a.sent...)
}

// Requests returns a copy of everything passed to Request.
func (a *API) Requests() []tgbotapi.Chattable {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]tgbotapi.Chattable(nil), a.requests...)
}

// SentOf filters the sent Chattables by type.
func SentOf[T tgbotapi.Chattable](a *API) []T {
	var out []T
	for _, c := range a.Sent() {
		if v, ok := c.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// RequestsOf filters the requests by type.
func RequestsOf[T tgbotapi.Chattable](a *API) []T {
	var out []T
	for _, c := range a.Requests() {
		if v, ok := c.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Texts returns the text of every plain message sent to chatID.
func (a *API) Texts(chatID int64) []string {
	var out []string
	for _, m := range SentOf[tgbotapi.MessageConfig](a) {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (a *API) Reset() {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.sent = nil
	a.requests = nil
	a.raw = nil
}
