// Package expiry deletes bot messages some time after they were sent.
//
// Every job belongs to a Scheduler, which can cancel it individually or, at
// shutdown, either delete everything still pending right away (drain) or
// leave it in the chat (abandon).
package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

var ErrShutdown = errors.New("expiry scheduler shut down")

// Messenger is the part of the Telegram API the scheduler needs.
type Messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type job struct {
	chatID int64
	ids    []int
	stop   chan struct{}
}

type Scheduler struct {
	api   Messenger
	delay time.Duration
	log   *zap.Logger

	mx     sync.Mutex
	jobs   map[uint64]*job
	nextID uint64
	closed bool

	wg      sync.WaitGroup
	drain   chan struct{}
	abandon chan struct{}
}

func NewScheduler(api Messenger, delay time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		api:     api,
		delay:   delay,
		log:     log,
		jobs:    make(map[uint64]*job),
		drain:   make(chan struct{}),
		abandon: make(chan struct{}),
	}
}

func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Warning is the notice posted under every expiring message.
func Warning(delay time.Duration) string {
	return fmt.Sprintf("➥ This message will be deleted in %s.", humanize(delay))
}

func humanize(d time.Duration) string {
	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return unit(int64(d/time.Minute), "minute")
	case d >= time.Second:
		return unit(int64(d/time.Second), "second")
	}
	return d.String()
}

// Expire posts a warning in reply to msg and deletes both after the delay.
// It returns the job id, usable with Cancel.
func (s *Scheduler) Expire(msg tgbotapi.Message) (uint64, error) {
	if msg.Chat == nil {
		return 0, errors.New("expire: message without chat")
	}
	ids := []int{msg.MessageID}

	warn := tgbotapi.NewMessage(msg.Chat.ID, Warning(s.delay))
	warn.ReplyToMessageID = msg.MessageID
	if sent, err := s.api.Send(warn); err != nil {
		// The payload still goes away, just without notice.
		s.log.Warn("expiry warning failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	} else {
		ids = append(ids, sent.MessageID)
	}

	return s.Schedule(msg.Chat.ID, ids...)
}

// Schedule deletes the given messages after the delay, without a warning.
func (s *Scheduler) Schedule(chatID int64, messageIDs ...int) (uint64, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return 0, ErrShutdown
	}
	s.nextID++
	id := s.nextID
	j := &job{chatID: chatID, ids: messageIDs, stop: make(chan struct{})}
	s.jobs[id] = j

	s.wg.Add(1)
	go s.run(id, j)
	return id, nil
}

func (s *Scheduler) run(id uint64, j *job) {
	defer s.wg.Done()
	defer s.forget(id)

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.drain:
	case <-j.stop:
		return
	case <-s.abandon:
		return
	}
	s.delete(j)
}

func (s *Scheduler) delete(j *job) {
	for _, mid := range j.ids {
		if _, err := s.api.Request(tgbotapi.NewDeleteMessage(j.chatID, mid)); err != nil {
			s.log.Warn("delete message failed",
				zap.Int64("chat_id", j.chatID),
				zap.Int("message_id", mid),
				zap.Error(err))
		}
	}
}

func (s *Scheduler) forget(id uint64) {
	s.mx.Lock()
	delete(s.jobs, id)
	s.mx.Unlock()
}

// take removes job id from the pending set and stops its timer.
func (s *Scheduler) take(id uint64) (*job, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	delete(s.jobs, id)
	close(j.stop)
	return j, true
}

// Cancel keeps the messages of job id. It reports whether the job was pending.
func (s *Scheduler) Cancel(id uint64) bool {
	_, ok := s.take(id)
	return ok
}

// Flush deletes right away every message of the pending job that holds
// messageID in chatID, warning included. It reports whether there was one.
func (s *Scheduler) Flush(chatID int64, messageID int) bool {
	s.mx.Lock()
	var id uint64
	for jid, j := range s.jobs {
		if j.chatID == chatID && j.holds(messageID) {
			id = jid
			break
		}
	}
	s.mx.Unlock()
	if id == 0 {
		return false
	}
	j, ok := s.take(id)
	if !ok {
		return false
	}
	s.delete(j)
	return true
}

func (j *job) holds(messageID int) bool {
	for _, mid := range j.ids {
		if mid == messageID {
			return true
		}
	}
	return false
}

func (s *Scheduler) Pending() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.jobs)
}

// Shutdown stops accepting jobs and settles the pending ones: with drain they
// are deleted now, otherwise they are left alone. It waits for the job
// goroutines until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context, drain bool) error {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return ErrShutdown
	}
	s.closed = true
	pending := len(s.jobs)
	s.mx.Unlock()

	if drain {
		close(s.drain)
	} else {
		close(s.abandon)
	}
	s.log.Info("expiry scheduler stopping", zap.Int("pending", pending), zap.Bool("drain", drain))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("expiry shutdown: %w", ctx.Err())
	}
}
