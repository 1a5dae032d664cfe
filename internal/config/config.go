package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full environment surface of both binaries. A .env file is
// loaded when present; real environment variables always win.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`

	OwnerID   int64   `envconfig:"OWNER_ID"`
	AuthUsers []int64 `envconfig:"AUTH_USERS"`

	WorkingGroup   int64  `envconfig:"WORKING_GROUP"`
	StoreChannelID int64  `envconfig:"STORE_CHANNEL_ID"`
	GroupLink      string `envconfig:"GROUP_LINK" default:"https://t.me/YourGroupLink"`

	DownloadDir     string `envconfig:"DOWNLOAD_DIRECTORY" default:"./downloads"`
	DefaultFilename string `envconfig:"DEFAULT_FILENAME" default:"recording"`
	TitleTag        string `envconfig:"TITLE_TAG" default:"recorderbot"`

	EnableShortlink  bool   `envconfig:"ENABLE_SHORTLINK" default:"true"`
	ShortlinkBaseURL string `envconfig:"SHORTLINK_URL" default:"https://gplinks.com"`
	ShortlinkAPIKey  string `envconfig:"SHORTLINK_API"`

	// Verification completed now stays valid for this many seconds.
	VerifyWindowSec int `envconfig:"VERIFICATION_EXPIRY_SECONDS" default:"14400"`

	// Hard cap on a single recording for unprivileged users, in seconds.
	MaxDurationSec int `envconfig:"MAX_DURATION" default:"1800"`

	// Active-task ceilings. 0 means unlimited.
	GlobalTaskLimit  int `envconfig:"LIMIT_LINK" default:"20"`
	PerUserTaskLimit int `envconfig:"USER_LIMIT_LINK" default:"3"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	VerifyAPIPort string `envconfig:"VERIFY_API_PORT" default:"8081"`

	Timezone string `envconfig:"TIMEZONE" default:"UTC"`

	FFmpegBin  string `envconfig:"FFMPEG_BIN" default:"ffmpeg"`
	FFprobeBin string `envconfig:"FFPROBE_BIN" default:"ffprobe"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}

// IsPrivileged reports whether the user is the owner or on the manual
// authorized list. Privileged users skip verification and the duration cap.
func (c *Config) IsPrivileged(userID int64) bool {
	if userID == c.OwnerID {
		return true
	}
	for _, id := range c.AuthUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) VerifyWindow() time.Duration {
	return time.Duration(c.VerifyWindowSec) * time.Second
}

func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationSec) * time.Second
}

// Location resolves the configured timezone, falling back to UTC on a bad
// name so a misconfigured TIMEZONE never takes the bot down.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
