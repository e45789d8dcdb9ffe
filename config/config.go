package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Game    GameConfig    `mapstructure:"game"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	// PublicURL is encoded into room QR codes, e.g. https://wolf.example.com
	PublicURL string `mapstructure:"public_url"`
	// Heartbeat closes connections silent for two intervals. 0 disables it.
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StorageConfig struct {
	Driver       string         `mapstructure:"driver"`
	DataDir      string         `mapstructure:"data_dir"`
	HistoryLimit int            `mapstructure:"history_limit"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
	Redis        RedisConfig    `mapstructure:"redis"`
	SQLite       SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type GameConfig struct {
	Durations DurationsConfig `mapstructure:"durations"`
	TimerTick time.Duration   `mapstructure:"timer_tick"`
}

// DurationsConfig holds phase lengths in seconds.
type DurationsConfig struct {
	Closing  float64 `mapstructure:"closing"`
	Werewolf float64 `mapstructure:"werewolf"`
	Seer     float64 `mapstructure:"seer"`
	Witch    float64 `mapstructure:"witch"`
	Guard    float64 `mapstructure:"guard"`
	Day      float64 `mapstructure:"day"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":3001")
	v.SetDefault("server.rpc_address", ":3002")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.public_url", "http://localhost:3001")
	v.SetDefault("server.heartbeat", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.history_limit", 50)
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "werewolf")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "werewolf")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "werewolf")
	// 为空时使用 data_dir/werewolf.db
	v.SetDefault("storage.sqlite.path", "")
	// AutomaticEnv only reaches keys viper already knows about.
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "werewolf")
	v.SetDefault("game.durations.closing", 5)
	v.SetDefault("game.durations.werewolf", 20)
	v.SetDefault("game.durations.seer", 15)
	v.SetDefault("game.durations.witch", 20)
	v.SetDefault("game.durations.guard", 15)
	v.SetDefault("game.durations.day", 10)
	v.SetDefault("game.timer_tick", 100*time.Millisecond)
}

// LoadConfig reads config.yaml from path. A missing file is not an error: defaults
// and environment variables (STORAGE_DRIVER, NATS_URL, ...) still apply.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
