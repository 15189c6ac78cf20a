package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeRedis()
	c.normalizeRateLimit()
	c.normalizePipeline()
	if err := c.normalizeMedia(); err != nil {
		return err
	}
	c.normalizePublish()
	c.normalizeObjectStore()
	c.normalizeSchedule()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("LOFI_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = defaultDatabaseDriver
	}
	if c.Database.Driver == "postgresql" || c.Database.Driver == "pgx" {
		c.Database.Driver = DriverPostgres
	}
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	if c.Database.URL == "" {
		if value, ok := os.LookupEnv("DATABASE_URL"); ok {
			c.Database.URL = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(c.Paths.DataDir, defaultDatabaseFile)
	}
	var err error
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	if c.Database.PingTimeoutSeconds <= 0 {
		c.Database.PingTimeoutSeconds = defaultPingTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeRedis() {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.Addr == "" {
		if value, ok := os.LookupEnv("REDIS_ADDR"); ok {
			c.Redis.Addr = strings.TrimSpace(value)
		}
	}
	if c.Redis.Password == "" {
		if value, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
			c.Redis.Password = value
		}
	}
}

func (c *Config) normalizeRateLimit() {
	c.RateLimit.Store = strings.ToLower(strings.TrimSpace(c.RateLimit.Store))
	if c.RateLimit.Store == "" {
		if c.Redis.Addr != "" {
			c.RateLimit.Store = RateStoreRedis
		} else {
			c.RateLimit.Store = RateStoreSQL
		}
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Handoff = strings.ToLower(strings.TrimSpace(c.Pipeline.Handoff))
	if c.Pipeline.Handoff == "" {
		c.Pipeline.Handoff = defaultHandoff
	}
	if c.Pipeline.Concurrency == 0 {
		c.Pipeline.Concurrency = defaultPipelineConcurrency
	}
	if len(c.Pipeline.StageTimeouts) > 0 {
		normalized := make(map[string]int, len(c.Pipeline.StageTimeouts))
		for stage, seconds := range c.Pipeline.StageTimeouts {
			normalized[strings.ToLower(strings.TrimSpace(stage))] = seconds
		}
		c.Pipeline.StageTimeouts = normalized
	}
}

func (c *Config) normalizeMedia() error {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
	var err error
	if c.Media.AudioDir, err = expandPath(strings.TrimSpace(c.Media.AudioDir)); err != nil {
		return fmt.Errorf("media.audio_dir: %w", err)
	}
	if c.Media.LoopVideo, err = expandPath(strings.TrimSpace(c.Media.LoopVideo)); err != nil {
		return fmt.Errorf("media.loop_video: %w", err)
	}
	if c.Media.IntroVideo, err = expandPath(strings.TrimSpace(c.Media.IntroVideo)); err != nil {
		return fmt.Errorf("media.intro_video: %w", err)
	}
	if c.Media.OutroVideo, err = expandPath(strings.TrimSpace(c.Media.OutroVideo)); err != nil {
		return fmt.Errorf("media.outro_video: %w", err)
	}
	c.Media.ImagePrompt = strings.TrimSpace(c.Media.ImagePrompt)
	if c.Media.ImagePrompt == "" {
		c.Media.ImagePrompt = defaultImagePrompt
	}
	return nil
}

func (c *Config) normalizePublish() {
	c.Publish.Target = strings.ToLower(strings.TrimSpace(c.Publish.Target))
	if c.Publish.Target == "" {
		c.Publish.Target = defaultPublishTarget
	}
	c.Publish.Title = strings.TrimSpace(c.Publish.Title)
	if c.Publish.Title == "" {
		c.Publish.Title = defaultPublishTitle
	}
	tags := make([]string, 0, len(c.Publish.Tags))
	for _, tag := range c.Publish.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	c.Publish.Tags = tags
}

func (c *Config) normalizeObjectStore() {
	c.ObjectStore.Endpoint = strings.TrimSpace(c.ObjectStore.Endpoint)
	c.ObjectStore.Bucket = strings.TrimSpace(c.ObjectStore.Bucket)
	c.ObjectStore.Prefix = strings.Trim(strings.TrimSpace(c.ObjectStore.Prefix), "/")
	if c.ObjectStore.AccessKey == "" {
		if value, ok := os.LookupEnv("S3_ACCESS_KEY"); ok {
			c.ObjectStore.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.ObjectStore.SecretKey == "" {
		if value, ok := os.LookupEnv("S3_SECRET_KEY"); ok {
			c.ObjectStore.SecretKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.ObjectStore.Region) == "" {
		c.ObjectStore.Region = defaultObjectStoreRegion
	}
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Cron = strings.TrimSpace(c.Schedule.Cron)
	c.Schedule.CallerKey = strings.TrimSpace(c.Schedule.CallerKey)
	if c.Schedule.CallerKey == "" {
		c.Schedule.CallerKey = defaultScheduleCallerKey
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
