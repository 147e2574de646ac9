package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

const (
	DefaultStatusInterval    = 2500 * time.Millisecond
	DefaultMaxUploadRetries  = 4
	DefaultAria2Connections  = 16
	DefaultAPIListen         = ":8080"
	DefaultVideoOut          = "mp4"
	DefaultTeraboxResolver   = "https://ytshorts.savetube.me/api/v1/terabox-downloader"
	DefaultUploadSizeCeiling = 1900 * 1024 * 1024

	DefaultYtdlpUpdateInterval = 24 * time.Hour
)

type Config struct {
	BotToken  string
	OwnerID   int64
	DumpID    int64
	WorkPath  string
	MirrorDir string
	LogLevel  string
	DBPath    string
	APIListen string
	APIKey    string

	DownloadSettings DownloadConfig
	UploadSettings   UploadConfig
	Services         ServiceConfig
}

type DownloadConfig struct {
	Aria2Connections    int
	StatusInterval      time.Duration
	YtdlpUpdateInterval time.Duration
}

type UploadConfig struct {
	SplitVideo    bool
	ConvertVideo  bool
	StreamUpload  bool
	VideoOut      string
	CaptionPrefix string
	CaptionSuffix string
	MaxRetries    int
	SizeCeiling   int64
}

type ServiceConfig struct {
	GDriveAPIKey   string
	TeraboxAPI     string
	SABnzbdURL     string
	SABnzbdAPIKey  string
	JDownloaderURL string
	BitsoIdentity  string
	BitsoPHPSessID string
	NZBCloudCookie string
	// TelegramAPIEndpoint points at a self-hosted Bot API server, which lifts
	// the 20 MB download limit of the public one.
	TelegramAPIEndpoint string
}

// LoadDotEnv populates the environment from a .env file when one exists.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil && !os.IsNotExist(err) {
		logutils.Log.WithError(err).Warn("Failed to load .env file")
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func NewConfig() (*Config, error) {
	workPath := utils.ExpandHome(getEnv("WORK_PATH", ""))
	parent := filepath.Dir(filepath.Clean(workPath))

	config := &Config{
		BotToken:  getEnv("BOT_TOKEN", ""),
		OwnerID:   getEnvInt64("OWNER_ID", 0),
		DumpID:    getEnvInt64("DUMP_ID", 0),
		WorkPath:  workPath,
		MirrorDir: utils.ExpandHome(getEnv("MIRROR_PATH", filepath.Join(parent, "mirror"))),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		DBPath:    getEnv("DB_PATH", filepath.Join(parent, "leecher.db")),
		APIListen: getEnv("API_LISTEN", DefaultAPIListen),
		APIKey:    getEnv("API_KEY", ""),

		DownloadSettings: DownloadConfig{
			Aria2Connections: getEnvInt("ARIA2_CONNECTIONS", DefaultAria2Connections),
			StatusInterval:   getEnvDuration("STATUS_INTERVAL", DefaultStatusInterval),

			YtdlpUpdateInterval: getEnvDuration("YTDLP_UPDATE_INTERVAL", DefaultYtdlpUpdateInterval),
		},

		UploadSettings: UploadConfig{
			SplitVideo:    getEnvBool("SPLIT_VIDEO", true),
			ConvertVideo:  getEnvBool("CONVERT_VIDEO", false),
			StreamUpload:  getEnvBool("STREAM_UPLOAD", true),
			VideoOut:      strings.ToLower(getEnv("VIDEO_OUT", DefaultVideoOut)),
			CaptionPrefix: getEnv("CAPTION_PREFIX", ""),
			CaptionSuffix: getEnv("CAPTION_SUFFIX", ""),
			MaxRetries:    getEnvInt("MAX_UPLOAD_RETRIES", DefaultMaxUploadRetries),
			SizeCeiling:   DefaultUploadSizeCeiling,
		},

		Services: ServiceConfig{
			GDriveAPIKey:   getEnv("GDRIVE_API_KEY", ""),
			TeraboxAPI:     getEnv("TERABOX_API", DefaultTeraboxResolver),
			SABnzbdURL:     strings.TrimRight(getEnv("SABNZBD_URL", ""), "/"),
			SABnzbdAPIKey:  getEnv("SABNZBD_API_KEY", ""),
			JDownloaderURL: strings.TrimRight(getEnv("JDOWNLOADER_URL", ""), "/"),
			BitsoIdentity:  getEnv("BITSO_IDENTITY", ""),
			BitsoPHPSessID: getEnv("BITSO_PHPSESSID", ""),
			NZBCloudCookie: getEnv("NZBCLOUD_CF_CLEARANCE", ""),

			TelegramAPIEndpoint: getEnv("TELEGRAM_API_ENDPOINT", ""),
		},
	}

	if err := config.validate(); err != nil {
		return nil, utils.WrapError(err, "configuration validation failed", map[string]any{
			"work_path": config.WorkPath,
		})
	}

	logutils.Log.WithFields(map[string]any{
		"work_path":  config.WorkPath,
		"mirror_dir": config.MirrorDir,
		"db_path":    config.DBPath,
	}).Info("Configuration loaded successfully")
	return config, nil
}

// UploadChat is the chat files are uploaded to: the dump channel when set, otherwise the owner.
func (c *Config) UploadChat() int64 {
	if c.DumpID != 0 {
		return c.DumpID
	}
	return c.OwnerID
}
