// Package broadcast copies a message to every known user.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Oppen/mediabot/metrics"
	"github.com/Oppen/mediabot/users"
)

var (
	ErrNoReference = errors.New("no message to broadcast")
	ErrUnsupported = errors.New("message type cannot be broadcast")
	ErrNoUsers     = errors.New("no users")
	ErrBusy        = errors.New("broadcast already running")
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Options struct {
	Workers int
	// Rate is the number of sends per second. Negative means unlimited.
	Rate          float64
	SendTimeout   time.Duration
	ProgressEvery int
}

// Result tallies a broadcast. Blocked users are also counted as failed.
type Result struct {
	Total       int
	Success     int
	Failed      int
	Blocked     int
	Duration    time.Duration
	Interrupted bool
}

func (r Result) Processed() int {
	return r.Success + r.Failed
}

// Percent is the share of Total already processed.
func (r Result) Percent() float64 {
	if r.Total == 0 {
		return 100
	}
	return float64(r.Processed()) / float64(r.Total) * 100
}

// Hooks are called from the goroutine running Run, never concurrently.
type Hooks struct {
	// Started runs once the recipients are counted, before the first send.
	Started func(total int)
	// Progress runs every Options.ProgressEvery processed users.
	Progress func(Result)
}

type Engine struct {
	api     Sender
	users   users.Directory
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger

	running atomic.Bool
}

func NewEngine(api Sender, dir users.Directory, opts Options, log *zap.Logger) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ProgressEvery < 1 {
		opts.ProgressEvery = 20
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Engine{
		api:     api,
		users:   dir,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Running reports whether a broadcast is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run sends ref to every user first seen before the call. Sends fail
// independently and are never retried. Cancelling ctx or a failing user
// cursor stops the run; the partial Result is returned with Interrupted set,
// along with the error.
func (e *Engine) Run(ctx context.Context, ref *tgbotapi.Message, hooks Hooks) (Result, error) {
	if ref == nil {
		return Result{}, ErrNoReference
	}
	if _, ok := Payload(ref, 0); !ok {
		return Result{}, ErrUnsupported
	}
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer e.running.Store(false)

	asOf := time.Now()
	total, err := e.users.Count(ctx, asOf)
	if err != nil {
		return Result{}, fmt.Errorf("count users: %w", err)
	}
	if total == 0 {
		return Result{}, ErrNoUsers
	}
	if hooks.Started != nil {
		hooks.Started(total)
	}

	start := time.Now()
	res := Result{Total: total}

	ids := make(chan int64)
	outcomes := make(chan error)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(ids)
		return e.users.Each(gctx, asOf, func(u users.Record) error {
			select {
			case ids <- u.UserID:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	var workers sync.WaitGroup
	workers.Add(e.opts.Workers)
	for i := 0; i < e.opts.Workers; i++ {
		g.Go(func() error {
			defer workers.Done()
			for id := range ids {
				if err := e.limiter.Wait(gctx); err != nil {
					return err
				}
				outcomes <- e.send(gctx, ref, id)
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(outcomes)
	}()

	// Single consumer, so counters and progress reports stay ordered.
	for err := range outcomes {
		e.tally(&res, err)
		if hooks.Progress != nil && res.Processed()%e.opts.ProgressEvery == 0 {
			hooks.Progress(res)
		}
	}

	err = g.Wait()
	res.Duration = time.Since(start)
	metrics.BroadcastDuration.Observe(res.Duration.Seconds())
	if ctx.Err() != nil {
		res.Interrupted = true
		return res, ctx.Err()
	}
	if err != nil {
		// The cursor broke off, the rest of the list was never reached.
		res.Interrupted = true
		return res, fmt.Errorf("list users: %w", err)
	}
	return res, nil
}

func (e *Engine) tally(res *Result, err error) {
	switch {
	case err == nil:
		res.Success++
		metrics.BroadcastSends.WithLabelValues("success").Inc()
	case Blocked(err):
		res.Failed++
		res.Blocked++
		metrics.BroadcastSends.WithLabelValues("blocked").Inc()
	default:
		res.Failed++
		metrics.BroadcastSends.WithLabelValues("failed").Inc()
		e.log.Debug("broadcast send failed", zap.Error(err))
	}
}

// send gives up on a single recipient after Options.SendTimeout. The HTTP
// request itself is not cancellable and finishes in the background.
func (e *Engine) send(ctx context.Context, ref *tgbotapi.Message, userID int64) error {
	c, _ := Payload(ref, userID)
	if e.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.SendTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.api.Send(c)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send to %d: %w", userID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send to %d: %w", userID, ctx.Err())
	}
}

// Blocked reports whether err means the user blocked the bot or otherwise
// forbids it to write to them.
func Blocked(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && tgErr.Code == http.StatusForbidden
}
