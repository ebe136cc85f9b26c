package expiry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Oppen/mediabot/bot/bottest"
)

func payload(chatID int64, id int) tgbotapi.Message {
	return tgbotapi.Message{MessageID: id, Chat: &tgbotapi.Chat{ID: chatID}}
}

func deleted(api *bottest.API) []int {
	var ids []int
	for _, d := range bottest.RequestsOf[tgbotapi.DeleteMessageConfig](api) {
		ids = append(ids, d.MessageID)
	}
	return ids
}

func TestWarning(t *testing.T) {
	assert.Equal(t, "➥ This message will be deleted in 10 minutes.", Warning(600*time.Second))
	assert.Equal(t, "➥ This message will be deleted in 1 hour.", Warning(time.Hour))
	assert.Equal(t, "➥ This message will be deleted in 90 seconds.", Warning(90*time.Second))
}

func TestExpire_DeletesPayloadAndWarning(t *testing.T) {
	api := bottest.New()
	s := NewScheduler(api, 10*time.Millisecond, zap.NewNop())

	_, err := s.Expire(payload(7, 1))
	require.NoError(t, err)

	warnings := bottest.SentOf[tgbotapi.MessageConfig](api)
	require.Len(t, warnings, 1)
	assert.Equal(t, 1, warnings[0].ReplyToMessageID)

	require.Eventually(t, func() bool { return len(deleted(api)) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int{1, 1001}, deleted(api))
	assert.Equal(t, 0, s.Pending())
}

func TestExpire_WarningFailureStillDeletesPayload(t *testing.T) {
	api := bottest.New()
	api.SendHook = func(tgbotapi.Chattable) error { return errors.New("flood") }
	s := NewScheduler(api, 5*time.Millisecond, zap.NewNop())

	_, err := s.Expire(payload(7, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(deleted(api)) == 1 }, time.Second, 5*time.Millisecond)
}

func TestExpire_DeleteErrorsAreSwallowed(t *testing.T) {
	api := bottest.New()
	calls := 0
	api.RequestHook = func(tgbotapi.Chattable) error {
		calls++
		return errors.New("message to delete not found")
	}
	s := NewScheduler(api, time.Millisecond, zap.NewNop())

	_, err := s.Expire(payload(7, 1))
	require.NoError(t, err)
	require.NoError(t, s.Shutdown(context.Background(), true))
	assert.Equal(t, 2, calls)
}

func TestCancel(t *testing.T) {
	api := bottest.New()
	s := NewScheduler(api, time.Hour, zap.NewNop())

	id, err := s.Schedule(7, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Pending())

	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))

	require.NoError(t, s.Shutdown(context.Background(), true))
	assert.Empty(t, deleted(api))
}

func TestShutdown_Drain(t *testing.T) {
	api := bottest.New()
	s := NewScheduler(api, time.Hour, zap.NewNop())

	_, err := s.Schedule(7, 1)
	require.NoError(t, err)
	_, err = s.Schedule(8, 2)
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(context.Background(), true))
	assert.ElementsMatch(t, []int{1, 2}, deleted(api))

	_, err = s.Schedule(9, 3)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.ErrorIs(t, s.Shutdown(context.Background(), true), ErrShutdown)
}

func TestShutdown_Abandon(t *testing.T) {
	api := bottest.New()
	s := NewScheduler(api, time.Hour, zap.NewNop())

	_, err := s.Schedule(7, 1)
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(context.Background(), false))
	assert.Empty(t, deleted(api))
	assert.Equal(t, 0, s.Pending())
}

func TestExpire_RequiresChat(t *testing.T) {
	s := NewScheduler(bottest.New(), time.Hour, zap.NewNop())
	_, err := s.Expire(tgbotapi.Message{MessageID: 1})
	assert.Error(t, err)
}

func TestFlush(t *testing.T) {
	api := bottest.New()
	s := NewScheduler(api, time.Hour, zap.NewNop())

	_, err := s.Schedule(7, 1, 2)
	require.NoError(t, err)
	_, err = s.Schedule(8, 1)
	require.NoError(t, err)

	assert.False(t, s.Flush(7, 3))
	assert.True(t, s.Flush(7, 1))
	assert.ElementsMatch(t, []int{1, 2}, deleted(api))
	assert.Equal(t, 1, s.Pending())
	assert.False(t, s.Flush(7, 2))

	require.NoError(t, s.Shutdown(context.Background(), false))
	assert.Len(t, deleted(api), 2)
}
