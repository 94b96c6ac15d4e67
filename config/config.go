package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Uplink       UplinkConfig
	Overflow     OverflowConfig
	Identity     IdentityConfig
	DeviceConfig DeviceConfigConfig
	Dedup        DedupConfig
	Health       HealthConfig
	SystemStatus SystemStatusConfig
	Version      string
	DevMode      bool
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type UplinkConfig struct {
	Endpoint        string
	Schedule        string
	WatchdogTimeout time.Duration // Cycles older than this no longer block a new one
	RequestTimeout  time.Duration
	MaxErrorCount   int // Consecutive failures tolerated before spilling to disk
	ResendBatchSize int // Items replayed from the overflow file per cycle
	ModuleName      string
}

type OverflowConfig struct {
	FilePath string
}

type IdentityConfig struct {
	FilePath string
}

type DeviceConfigConfig struct {
	FilePath string
}

type DedupConfig struct {
	Visibility          time.Duration
	HighCountVisibility time.Duration
	HighCountThreshold  int
	CleanupInterval     time.Duration
	SweepSchedule       string
}

type HealthConfig struct {
	ScanSchedule      string
	EmitInterval      time.Duration
	UnresponsiveAfter time.Duration
	DebounceWindow    time.Duration
	ModuleName        string
	OutputModules     []string
	FallbackModules   []string
	ConfigModule      string
	StatusModule      string
}

type SystemStatusConfig struct {
	Schedule   string
	ModuleName string
}

func NewConfig() (*Config, error) {
	// Configure Viper to read .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	// Enable automatic environment variable loading
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_PRETTY", false)
	viper.SetDefault("APP_VERSION", "dev")
	viper.SetDefault("DEV_MODE", false)
	viper.SetDefault("UPLINK_ENDPOINT", "http://localhost:3000/api/nodes/sync")
	viper.SetDefault("UPLINK_SCHEDULE", "* * * * * *") // Every second
	viper.SetDefault("UPLINK_WATCHDOG_TIMEOUT", "15s")
	viper.SetDefault("UPLINK_REQUEST_TIMEOUT", "60s")
	viper.SetDefault("UPLINK_MAX_ERROR_COUNT", 5)
	viper.SetDefault("UPLINK_RESEND_BATCH_SIZE", 250)
	viper.SetDefault("UPLINK_MODULE_NAME", "NetworkModule")
	viper.SetDefault("OVERFLOW_FILE_PATH", "./data/overflow.json")
	viper.SetDefault("IDENTITY_FILE_PATH", "./data/id.json")
	viper.SetDefault("DEVICE_CONFIG_FILE_PATH", "./data/config.json")
	viper.SetDefault("DEDUP_VISIBILITY", "5s")
	viper.SetDefault("DEDUP_HIGH_COUNT_VISIBILITY", "60s")
	viper.SetDefault("DEDUP_HIGH_COUNT_THRESHOLD", 250)
	viper.SetDefault("DEDUP_CLEANUP_INTERVAL", "10s")
	viper.SetDefault("DEDUP_SWEEP_SCHEDULE", "*/10 * * * * *")
	viper.SetDefault("HEALTH_SCAN_SCHEDULE", "*/3 * * * * *")
	viper.SetDefault("HEALTH_EMIT_INTERVAL", "15s")
	viper.SetDefault("HEALTH_UNRESPONSIVE_AFTER", "35s")
	viper.SetDefault("HEALTH_DEBOUNCE_WINDOW", "5ms")
	viper.SetDefault("HEALTH_MODULE_NAME", "ModuleStatusTracker")
	viper.SetDefault("HEALTH_OUTPUT_MODULES", "")
	viper.SetDefault("HEALTH_FALLBACK_MODULES", "")
	viper.SetDefault("HEALTH_CONFIG_MODULE", "ConfigManager")
	viper.SetDefault("HEALTH_STATUS_MODULE", "StatusTracker")
	viper.SetDefault("SYSTEM_STATUS_SCHEDULE", "*/15 * * * * *")
	viper.SetDefault("SYSTEM_STATUS_MODULE_NAME", "StatusTracker")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	var config Config
	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Version = viper.GetString("APP_VERSION")
	config.DevMode = viper.GetBool("DEV_MODE")

	// --- Logging ---
	config.Log.Level = viper.GetString("LOG_LEVEL")
	config.Log.Pretty = viper.GetBool("LOG_PRETTY")

	// --- Uplink ---
	config.Uplink.Endpoint = viper.GetString("UPLINK_ENDPOINT")
	config.Uplink.Schedule = viper.GetString("UPLINK_SCHEDULE")
	config.Uplink.WatchdogTimeout = viper.GetDuration("UPLINK_WATCHDOG_TIMEOUT")
	config.Uplink.RequestTimeout = viper.GetDuration("UPLINK_REQUEST_TIMEOUT")
	config.Uplink.MaxErrorCount = viper.GetInt("UPLINK_MAX_ERROR_COUNT")
	config.Uplink.ResendBatchSize = viper.GetInt("UPLINK_RESEND_BATCH_SIZE")
	config.Uplink.ModuleName = viper.GetString("UPLINK_MODULE_NAME")

	// --- Local files ---
	config.Overflow.FilePath = viper.GetString("OVERFLOW_FILE_PATH")
	config.Identity.FilePath = viper.GetString("IDENTITY_FILE_PATH")
	config.DeviceConfig.FilePath = viper.GetString("DEVICE_CONFIG_FILE_PATH")

	// --- Log dedup ---
	config.Dedup.Visibility = viper.GetDuration("DEDUP_VISIBILITY")
	config.Dedup.HighCountVisibility = viper.GetDuration("DEDUP_HIGH_COUNT_VISIBILITY")
	config.Dedup.HighCountThreshold = viper.GetInt("DEDUP_HIGH_COUNT_THRESHOLD")
	config.Dedup.CleanupInterval = viper.GetDuration("DEDUP_CLEANUP_INTERVAL")
	config.Dedup.SweepSchedule = viper.GetString("DEDUP_SWEEP_SCHEDULE")

	// --- Module health ---
	config.Health.ScanSchedule = viper.GetString("HEALTH_SCAN_SCHEDULE")
	config.Health.EmitInterval = viper.GetDuration("HEALTH_EMIT_INTERVAL")
	config.Health.UnresponsiveAfter = viper.GetDuration("HEALTH_UNRESPONSIVE_AFTER")
	config.Health.DebounceWindow = viper.GetDuration("HEALTH_DEBOUNCE_WINDOW")
	config.Health.ModuleName = viper.GetString("HEALTH_MODULE_NAME")
	config.Health.OutputModules = splitList(viper.GetString("HEALTH_OUTPUT_MODULES"))
	config.Health.FallbackModules = splitList(viper.GetString("HEALTH_FALLBACK_MODULES"))
	config.Health.ConfigModule = viper.GetString("HEALTH_CONFIG_MODULE")
	config.Health.StatusModule = viper.GetString("HEALTH_STATUS_MODULE")

	// --- System status ---
	config.SystemStatus.Schedule = viper.GetString("SYSTEM_STATUS_SCHEDULE")
	config.SystemStatus.ModuleName = viper.GetString("SYSTEM_STATUS_MODULE_NAME")

	log.Info().Interface("config", config).Msg("Config loaded")
	return &config, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
