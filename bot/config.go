package bot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)

type Config struct {
	// Don't persist, it'd be meaningless
	Root  string `yaml:"-" ignored:"true"`
	Token string `yaml:"api_token" envconfig:"BOT_TOKEN"`

	NumWorkers  int      `yaml:"workers" envconfig:"WORKERS"`
	NumBatches  int      `yaml:"batches" envconfig:"BATCHES"`
	PollTimeout int      `yaml:"poll_timeout" envconfig:"POLL_TIMEOUT"`
	TTL         Duration `yaml:"update_ttl" envconfig:"UPDATE_TTL"`

	Admins          []int64       `yaml:"admins" envconfig:"ADMIN_USER_IDS"`
	ChannelUsername string        `yaml:"channel_username" envconfig:"CHANNEL_USERNAME"`
	GroupInviteLink string        `yaml:"group_invite_link" envconfig:"GROUP_INVITE_LINK"`
	TargetGroupID   int64         `yaml:"target_group_id" envconfig:"TARGET_GROUP_ID"`
	LoggerChannelID int64         `yaml:"logger_channel_id" envconfig:"LOGGER_CHANNEL_ID"`
	WelcomePhotoURL string        `yaml:"welcome_photo_url" envconfig:"WELCOME_PHOTO_URL"`
	DeleteDelay     time.Duration `yaml:"delete_delay" envconfig:"DELETE_DELAY"`
	DrainOnShutdown bool          `yaml:"drain_on_shutdown" envconfig:"DRAIN_ON_SHUTDOWN"`

	Storage   StorageConfig   `yaml:"storage"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Broadcast BroadcastConfig `yaml:"broadcast"`

	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
	LogDev      bool   `yaml:"log_dev" envconfig:"LOG_DEV"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend" envconfig:"STORE_BACKEND"`
	VideoFile string `yaml:"video_file" envconfig:"VIDEO_STORE_FILE"`
	GIFFile   string `yaml:"gif_file" envconfig:"GIF_STORE_FILE"`
	BadgerDir string `yaml:"badger_dir" envconfig:"BADGER_DIR"`
}

type MongoConfig struct {
	URL        string `yaml:"url" envconfig:"MONGO_URL"`
	Database   string `yaml:"database" envconfig:"MONGO_DATABASE"`
	Collection string `yaml:"collection" envconfig:"MONGO_COLLECTION"`
}

type BroadcastConfig struct {
	Workers       int           `yaml:"workers" envconfig:"BROADCAST_WORKERS"`
	Rate          float64       `yaml:"rate" envconfig:"BROADCAST_RATE"`
	SendTimeout   time.Duration `yaml:"send_timeout" envconfig:"BROADCAST_SEND_TIMEOUT"`
	ProgressEvery int           `yaml:"progress_every" envconfig:"BROADCAST_PROGRESS_EVERY"`
}

// LoadConfig reads root/.env and root/config.yaml when present, then lets
// the environment override them. Relative store paths end up under root.
func LoadConfig(root string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(root, ".env"))

	cfg := &Config{}
	data, err := os.ReadFile(filepath.Join(root, "config.yaml"))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// No default tags: envconfig would let them override the file.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.applyDefaults()

	cfg.Root = root
	cfg.ChannelUsername = strings.TrimPrefix(cfg.ChannelUsername, "@")
	cfg.Storage.VideoFile = cfg.Path(cfg.Storage.VideoFile)
	cfg.Storage.GIFFile = cfg.Path(cfg.Storage.GIFFile)
	cfg.Storage.BadgerDir = cfg.Path(cfg.Storage.BadgerDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setStr := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	setInt(&c.NumWorkers, 8)
	setInt(&c.NumBatches, 1)
	setInt(&c.PollTimeout, 60)
	if c.TTL.Duration == 0 {
		c.TTL.Duration = 24 * time.Hour
	}
	if c.DeleteDelay == 0 {
		c.DeleteDelay = 600 * time.Second
	}
	setStr(&c.Storage.Backend, BackendJSON)
	setStr(&c.Storage.VideoFile, "videostore.json")
	setStr(&c.Storage.GIFFile, "gifstore.json")
	setStr(&c.Storage.BadgerDir, "media.badger")
	setStr(&c.Mongo.Database, "Pom-Pom")
	setStr(&c.Mongo.Collection, "users")
	setInt(&c.Broadcast.Workers, 4)
	setInt(&c.Broadcast.ProgressEvery, 20)
	if c.Broadcast.Rate == 0 {
		c.Broadcast.Rate = 25
	}
	if c.Broadcast.SendTimeout == 0 {
		c.Broadcast.SendTimeout = 15 * time.Second
	}
}

// Path resolves p against the root directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required: %w", ErrInvalidArguments)
	}
	if c.ChannelUsername == "" {
		return fmt.Errorf("CHANNEL_USERNAME is required: %w", ErrInvalidArguments)
	}
	if c.TargetGroupID == 0 {
		return fmt.Errorf("TARGET_GROUP_ID is required: %w", ErrInvalidArguments)
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("ADMIN_USER_IDS needs at least one id: %w", ErrInvalidArguments)
	}
	if c.DeleteDelay <= 0 {
		return fmt.Errorf("DELETE_DELAY must be positive: %w", ErrInvalidArguments)
	}
	switch c.Storage.Backend {
	case BackendJSON, BackendBadger:
	default:
		return fmt.Errorf("STORE_BACKEND %q is not json or badger: %w", c.Storage.Backend, ErrInvalidArguments)
	}
	if c.Broadcast.Workers < 1 || c.Broadcast.ProgressEvery < 1 {
		return fmt.Errorf("broadcast workers and progress interval must be at least 1: %w", ErrInvalidArguments)
	}
	return nil
}
