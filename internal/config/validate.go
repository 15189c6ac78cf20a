package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

var knownStages = map[string]struct{}{
	"image": {}, "loop": {}, "audio": {}, "render": {}, "thumbnail": {}, "publish": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database.path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver. Set DATABASE_URL or edit the config file")
		}
	default:
		return fmt.Errorf("database.driver: unsupported value %q (want sqlite or postgres)", c.Database.Driver)
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return errors.New("database connection limits must not be negative")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}
	if c.RateLimit.Requests <= 0 {
		return errors.New("rate_limit.requests must be positive")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return errors.New("rate_limit.window_seconds must be positive")
	}
	switch c.RateLimit.Store {
	case RateStoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("rate_limit.store is redis but redis.addr is empty")
		}
	case RateStoreSQL:
	default:
		return fmt.Errorf("rate_limit.store: unsupported value %q (want redis or sql)", c.RateLimit.Store)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Concurrency != 1 {
		return fmt.Errorf("pipeline.concurrency must be 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Pipeline.StageTimeoutSeconds <= 0 {
		return errors.New("pipeline.stage_timeout_seconds must be positive")
	}
	for stage, seconds := range c.Pipeline.StageTimeouts {
		if _, ok := knownStages[stage]; !ok {
			return fmt.Errorf("pipeline.stage_timeouts: unknown stage %q", stage)
		}
		if seconds <= 0 {
			return fmt.Errorf("pipeline.stage_timeouts.%s must be positive", stage)
		}
	}
	switch c.Pipeline.Handoff {
	case HandoffPoll:
	case HandoffAsynq:
		if c.Redis.Addr == "" {
			return errors.New("pipeline.handoff is asynq but redis.addr is empty")
		}
	default:
		return fmt.Errorf("pipeline.handoff: unsupported value %q (want poll or asynq)", c.Pipeline.Handoff)
	}
	if c.Pipeline.PollIntervalSeconds <= 0 {
		return errors.New("pipeline.poll_interval_seconds must be positive")
	}
	if c.Pipeline.ErrorRetrySeconds <= 0 {
		return errors.New("pipeline.error_retry_seconds must be positive")
	}
	if c.Pipeline.HeartbeatIntervalSeconds <= 0 {
		return errors.New("pipeline.heartbeat_interval_seconds must be positive")
	}
	if c.Pipeline.HeartbeatTimeoutSeconds <= c.Pipeline.HeartbeatIntervalSeconds {
		return errors.New("pipeline.heartbeat_timeout_seconds must be greater than heartbeat_interval_seconds")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.PlaylistMin <= 0 {
		return errors.New("media.playlist_min must be positive")
	}
	if c.Media.PlaylistMax < c.Media.PlaylistMin {
		return errors.New("media.playlist_max must be at least media.playlist_min")
	}
	if c.Media.LoopSeconds <= 0 {
		return errors.New("media.loop_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.Target {
	case PublishSimulated:
		return nil
	case PublishObjectStore:
		if c.ObjectStore.Endpoint == "" {
			return errors.New("object_store.endpoint must be set when publish.target is object_store")
		}
		if c.ObjectStore.Bucket == "" {
			return errors.New("object_store.bucket must be set when publish.target is object_store")
		}
		if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
			return errors.New("object_store credentials are required. Set S3_ACCESS_KEY/S3_SECRET_KEY or edit the config file")
		}
		return nil
	default:
		return fmt.Errorf("publish.target: unsupported value %q (want simulated or object_store)", c.Publish.Target)
	}
}

func (c *Config) validateSchedule() error {
	if c.Schedule.Cron == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.New("logging rotation settings must not be negative")
	}
	return nil
}
