package config

const (
	defaultDataDir                 = "~/.local/share/lofi"
	defaultLogDir                  = "~/.local/share/lofi/logs"
	defaultAPIBind                 = "127.0.0.1:8087"
	defaultDatabaseFile            = "lofi.db"
	defaultMaxOpenConns            = 10
	defaultMaxIdleConns            = 5
	defaultConnMaxLifetimeSeconds  = 1800
	defaultPingTimeoutSeconds      = 5
	defaultRateLimitRequests       = 60
	defaultRateLimitWindowSeconds  = 60
	defaultStageTimeoutSeconds     = 1800
	defaultPollIntervalSeconds     = 5
	defaultErrorRetrySeconds       = 10
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultAudioDir                = "~/.local/share/lofi/audio"
	defaultPlaylistMin             = 80
	defaultPlaylistMax             = 120
	defaultLoopSeconds             = 6
	defaultImagePrompt             = "cozy lofi study room at night, warm desk lamp, rain on the window"
	defaultPublishTitle            = "Lofi Beats to Study and Relax"
	defaultPublishDescription      = "Chill lofi hip hop mix for studying, working, and relaxing."
	defaultObjectStoreRegion       = "us-east-1"
	defaultObjectStorePrefix       = "lofi"
	defaultScheduleCallerKey       = "scheduler"
	defaultNotifyRequestTimeout    = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogMaxSizeMB            = 50
	defaultLogMaxBackups           = 5
	defaultLogMaxAgeDays           = 30
	defaultPublishTarget           = PublishSimulated
	defaultHandoff                 = HandoffPoll
	defaultDatabaseDriver          = DriverSQLite
	defaultPipelineConcurrency     = 1
	defaultRateLimitEnabled        = true
	defaultNotifyRunFailed         = true
	defaultNotifyRunSucceeded      = true
	defaultNotifyRunStarted        = false
	defaultObjectStoreUseSSL       = true
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Rate window stores.
const (
	RateStoreRedis = "redis"
	RateStoreSQL   = "sql"
)

// Handoff modes between the trigger gateway and the worker.
const (
	HandoffPoll  = "poll"
	HandoffAsynq = "asynq"
)

// Publish targets.
const (
	PublishSimulated   = "simulated"
	PublishObjectStore = "object_store"
)

var defaultPublishTags = []string{"lofi", "chill", "study", "beats"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Database: Database{
			Driver:                 defaultDatabaseDriver,
			MaxOpenConns:           defaultMaxOpenConns,
			MaxIdleConns:           defaultMaxIdleConns,
			ConnMaxLifetimeSeconds: defaultConnMaxLifetimeSeconds,
			PingTimeoutSeconds:     defaultPingTimeoutSeconds,
		},
		RateLimit: RateLimit{
			Enabled:       defaultRateLimitEnabled,
			Requests:      defaultRateLimitRequests,
			WindowSeconds: defaultRateLimitWindowSeconds,
		},
		Pipeline: Pipeline{
			StageTimeoutSeconds:      defaultStageTimeoutSeconds,
			Concurrency:              defaultPipelineConcurrency,
			Handoff:                  defaultHandoff,
			PollIntervalSeconds:      defaultPollIntervalSeconds,
			ErrorRetrySeconds:        defaultErrorRetrySeconds,
			HeartbeatIntervalSeconds: defaultHeartbeatInterval,
			HeartbeatTimeoutSeconds:  defaultHeartbeatTimeout,
		},
		Media: Media{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			AudioDir:      defaultAudioDir,
			PlaylistMin:   defaultPlaylistMin,
			PlaylistMax:   defaultPlaylistMax,
			LoopSeconds:   defaultLoopSeconds,
			ImagePrompt:   defaultImagePrompt,
		},
		Publish: Publish{
			Target:      defaultPublishTarget,
			Title:       defaultPublishTitle,
			Description: defaultPublishDescription,
			Tags:        append([]string(nil), defaultPublishTags...),
		},
		ObjectStore: ObjectStore{
			Region: defaultObjectStoreRegion,
			UseSSL: defaultObjectStoreUseSSL,
			Prefix: defaultObjectStorePrefix,
		},
		Schedule: Schedule{
			CallerKey: defaultScheduleCallerKey,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunStarted:     defaultNotifyRunStarted,
			RunSucceeded:   defaultNotifyRunSucceeded,
			RunFailed:      defaultNotifyRunFailed,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
