package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Oppen/mediabot/bot"
	"github.com/Oppen/mediabot/expiry"
	"github.com/Oppen/mediabot/media"
	"github.com/Oppen/mediabot/metrics"
	"github.com/Oppen/mediabot/module"
	"github.com/Oppen/mediabot/users"

	// Handlers, for initialization only.
	_ "github.com/Oppen/mediabot/broadcast"
	_ "github.com/Oppen/mediabot/delivery"
	_ "github.com/Oppen/mediabot/ingest"
	_ "github.com/Oppen/mediabot/stat"
)

const (
	WorkQueueLen  = 100
	BatchQueueLen = 5

	shutdownTimeout = 30 * time.Second
)

type BatchWorkerState struct {
	BatchQueue <-chan tgbotapi.Update
}

type WorkerState struct {
	WorkQueue  <-chan tgbotapi.Update
	BatchQueue chan<- tgbotapi.Update
}

// BatchWorker runs the commands that take long, one at a time. Its context
// is cancelled as soon as a shutdown starts.
func BatchWorker(ctx context.Context, b *bot.Bot, worker *BatchWorkerState) {
	for {
		update, ok := <-worker.BatchQueue
		// Channel was closed, that's our cue to exit.
		if !ok {
			break
		}
		module.RunBatch(ctx, b, &update)
	}
	b.Log.Debug("batch worker done")
}

func Worker(ctx context.Context, b *bot.Bot, worker *WorkerState) {
	batch := func(u tgbotapi.Update) bool {
		select {
		case worker.BatchQueue <- u:
			return true
		default:
			return false
		}
	}
	for {
		update, ok := <-worker.WorkQueue
		// Channel was closed, that's our cue to exit.
		if !ok {
			break
		}
		module.Dispatch(ctx, b, &update, batch)
	}
	b.Log.Debug("worker done")
}

func newLogger(dev bool) (*zap.Logger, error) {
	var config zap.Config
	if dev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config.Build()
}

func openLibrary(cfg *bot.Config, log *zap.Logger) (*media.Library, error) {
	if cfg.Storage.Backend == bot.BackendBadger {
		db, err := media.OpenDB(cfg.Storage.BadgerDir, log)
		if err != nil {
			return nil, err
		}
		video, err := db.Store(media.KindVideo)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		gif, err := db.Store(media.KindGIF)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return media.NewLibrary(video, gif, db)
	}

	video, err := media.OpenJSONStore(cfg.Storage.VideoFile, media.KindVideo, log)
	if err != nil {
		return nil, err
	}
	gif, err := media.OpenJSONStore(cfg.Storage.GIFFile, media.KindGIF, log)
	if err != nil {
		return nil, err
	}
	return media.NewLibrary(video, gif, nil)
}

func openDirectory(ctx context.Context, cfg *bot.Config, log *zap.Logger) (users.Directory, error) {
	if cfg.Mongo.URL == "" {
		log.Warn("MONGO_URL not set, users are kept in memory and lost on restart")
		return users.NewMemory(), nil
	}
	client, err := users.NewMongoClient(ctx, cfg.Mongo.URL)
	if err != nil {
		return nil, err
	}
	return users.NewMongoDirectory(ctx, client, cfg.Mongo.Database, cfg.Mongo.Collection)
}

func main() {
	// Everything relative is taken from this directory.
	rootDir := os.Getenv("MEDIABOT_ROOT")

	cfg, cfgErr := bot.LoadConfig(rootDir)
	log, err := newLogger(cfg != nil && cfg.LogDev)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	if cfgErr != nil {
		log.Fatal("config load failed", zap.Error(cfgErr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tgbot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		log.Fatal("authorization failed", zap.Error(err))
	}
	tgbot.Debug = cfg.LogDev
	log.Info("authorized", zap.String("account", tgbot.Self.UserName))

	lib, err := openLibrary(cfg, log.Named("media"))
	if err != nil {
		log.Fatal("media store open failed", zap.Error(err))
	}
	dir, err := openDirectory(ctx, cfg, log.Named("users"))
	if err != nil {
		log.Fatal("user directory open failed", zap.Error(err))
	}

	b := bot.New(tgbot, tgbot.Self, *cfg, log)
	b.Media = lib
	b.Users = dir
	b.Expiry = expiry.NewScheduler(tgbot, cfg.DeleteDelay, log.Named("expiry"))

	defer func() {
		// Handlers recover on their own, so this only covers a crash while
		// starting up. We still want the stores on disk as they are in
		// memory, so an operator can restart without losing links.
		if r := recover(); r != nil {
			if err := lib.Persist(); err != nil {
				log.Error("store persist failed", zap.Error(err))
			}
			// Now we can panic again
			panic(r)
		}
	}()

	// Let's register our handlers.
	module.InitModules(b)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal("metrics registration failed", zap.Error(err))
	}
	var metricsSrv *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, log.Named("metrics"))
		metricsSrv.Start()
	}

	u := tgbotapi.NewUpdate(0)
	// May cause long shutdown, but reduces traffic and CPU usage
	u.Timeout = cfg.PollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}

	tgbot.Buffer = WorkQueueLen
	updateQueue := tgbot.GetUpdatesChan(u)

	// Long commands watch their own context, cancelled on the first signal
	// so a running broadcast reports itself interrupted.
	batchCtx, cancelBatches := context.WithCancel(ctx)
	defer cancelBatches()

	batchWg := sync.WaitGroup{}
	batchWg.Add(cfg.NumBatches)
	batchQueue := make(chan tgbotapi.Update, BatchQueueLen)
	batchesState := make([]BatchWorkerState, cfg.NumBatches)
	for i := 0; i < cfg.NumBatches; i++ {
		go func(i int) {
			defer batchWg.Done()

			batchesState[i].BatchQueue = batchQueue
			BatchWorker(batchCtx, b, &batchesState[i])
		}(i)
	}

	workerWg := sync.WaitGroup{}
	workerWg.Add(cfg.NumWorkers)
	workersState := make([]WorkerState, cfg.NumWorkers)
	for i := 0; i < cfg.NumWorkers; i++ {
		go func(i int) {
			defer workerWg.Done()

			workersState[i].WorkQueue = updateQueue
			workersState[i].BatchQueue = batchQueue
			Worker(ctx, b, &workersState[i])
		}(i)
	}

	sCh := make(chan os.Signal, 1)
	signal.Notify(sCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	s := <-sCh
	log.Info("caught signal", zap.String("signal", s.String()))
	cancelBatches()

	// Closing each queue and waiting for the affected routines, first for
	// regular workers and then for batch workers, guarantees every update
	// already received gets processed before we quit.
	// `StopReceivingUpdates` closes the API update channel, so no need to
	// do it manually.
	tgbot.StopReceivingUpdates()
	log.Info("waiting for workers")
	workerWg.Wait()
	close(batchQueue)
	log.Info("waiting for batch workers")
	batchWg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := b.Expiry.Shutdown(shutdownCtx, cfg.DrainOnShutdown); err != nil {
		log.Warn("expiry shutdown incomplete", zap.Error(err))
	}
	// A failed snapshot write during a handler is retried here.
	if err := lib.Persist(); err != nil {
		log.Error("store persist failed", zap.Error(err))
	}
	if err := lib.Close(); err != nil {
		log.Error("media store close failed", zap.Error(err))
	}
	if err := dir.Close(shutdownCtx); err != nil {
		log.Error("user directory close failed", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	log.Info("bye")
}
