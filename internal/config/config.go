package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port                    string
	DatabaseDriver          string
	DatabaseDSN             string
	JWTSecret               string
	Env                     string
	AccessTokenTTLMinutes   int
	RefreshTokenTTLDays     int
	AuthTimeoutSeconds      int
	ScheduleIntervalSeconds int
	InviteTTLHours          int
	StoreTimeoutSeconds     int
	MaxFrameBytes           int64
	RedisAddr               string
	AMQPURL                 string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt 读取正整数配置，缺失或非法时回退到默认值。
func getenvInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// LoadEnvFile 将 .env 文件中的变量注入进程环境，已存在的变量不会被覆盖。
// 文件不存在时静默跳过。
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func Load() Config {
	return Config{
		Port:                    getenv("APP_PORT", "8080"),
		DatabaseDriver:          getenv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:             getenv("DATABASE_DSN", "file:neochat.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=off"),
		JWTSecret:               getenv("JWT_SECRET", defaultJWTSecret),
		Env:                     getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes:   getenvInt("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:     getenvInt("REFRESH_TOKEN_TTL_DAYS", 7),
		AuthTimeoutSeconds:      getenvInt("AUTH_TIMEOUT_SECONDS", 60),
		ScheduleIntervalSeconds: getenvInt("SCHEDULE_INTERVAL_SECONDS", 10),
		InviteTTLHours:          getenvInt("INVITE_TTL_HOURS", 24),
		StoreTimeoutSeconds:     getenvInt("STORE_TIMEOUT_SECONDS", 5),
		MaxFrameBytes:           int64(getenvInt("MAX_FRAME_BYTES", 20<<20)),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		AMQPURL:                 os.Getenv("AMQP_URL"),
	}
}

// Validate 在启动前检查配置，非 dev 环境禁止使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: APP_PORT is empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN is empty")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return errors.New("config: DATABASE_DRIVER must be postgres or sqlite")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("config: JWT_SECRET must be set outside dev")
	}
	return nil
}
