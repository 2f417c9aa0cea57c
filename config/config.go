package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// ComposeMode 决定合成发生在读取时还是写入时。
// 两者的目录不变量不兼容，一个部署只能二选一：
//   - readtime:  目录里是许多不可变片段，播放时再合成
//   - writetime: 每次上传立即与单一母带交叉淡化合并，播放只读一个文件
type ComposeMode string

const (
	ComposeReadTime  ComposeMode = "readtime"
	ComposeWriteTime ComposeMode = "writetime"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	FFmpegPath  string
	FFprobePath string

	ClipsDir     string // 已发布片段目录
	UploadTmpDir string // 上传临时文件目录

	// 统一输出编码参数，所有转码共用一套，保证可拼接
	AudioBitrate string // e.g. "128k"
	SampleRate   int    // e.g. 44100
	Channels     int    // e.g. 2

	MinClipBytes      int64   // 小于该字节数的片段视为损坏/空录音
	SilenceThreshold  float64 // 静音判定幅度阈值，满幅的比例
	SilenceMinSeconds float64 // 静音最短持续时间
	CrossfadeSeconds  float64 // writetime 模式下的交叉淡化时长

	ComposeMode ComposeMode

	ResetToken string // 清空操作的共享密钥，空则禁用清空接口

	// 日志配置
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Redis配置（可选，用于统计计数）
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MinIO配置（可选，用于片段归档备份）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	dataBase := getEnv("DATA_DIR", "data")

	mode := ComposeMode(getEnv("COMPOSE_MODE", string(ComposeReadTime)))
	if mode != ComposeReadTime && mode != ComposeWriteTime {
		log.Printf("Unknown COMPOSE_MODE %q, falling back to %q", mode, ComposeReadTime)
		mode = ComposeReadTime
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		ClipsDir:     getEnv("CLIPS_DIR", filepath.Join(dataBase, "clips")),
		UploadTmpDir: getEnv("UPLOAD_TMP_DIR", filepath.Join(dataBase, "tmp")),

		AudioBitrate: getEnv("AUDIO_BITRATE", "128k"),
		SampleRate:   getEnvInt("SAMPLE_RATE", 44100),
		Channels:     getEnvInt("CHANNELS", 2),

		MinClipBytes:      int64(getEnvInt("MIN_CLIP_BYTES", 400)),
		SilenceThreshold:  getEnvFloat("SILENCE_THRESHOLD", 0.02),
		SilenceMinSeconds: getEnvFloat("SILENCE_MIN_SECONDS", 1.0),
		CrossfadeSeconds:  getEnvFloat("CROSSFADE_SECONDS", 1.0),

		ComposeMode: mode,

		ResetToken: os.Getenv("RESET_TOKEN"), // 密钥不设默认值

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),

		RedisAddr:     os.Getenv("REDIS_ADDR"), // 空表示禁用统计
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"), // 空表示禁用归档
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "echowall"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}
