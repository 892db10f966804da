// Package config loads pool, server, and load-generator settings from a
// YAML/JSON file, a .env file, and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"threadpool/internal/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 環境変数名
const (
	EnvWorkers         = "THREADPOOL_WORKERS"
	EnvLogLevel        = "THREADPOOL_LOG_LEVEL"
	EnvAddr            = "THREADPOOL_ADDR"
	EnvShutdownTimeout = "THREADPOOL_SHUTDOWN_TIMEOUT"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Pool   PoolConfig   `yaml:"pool" json:"pool"`
	Server ServerConfig `yaml:"server" json:"server"`
	Load   LoadConfig   `yaml:"load" json:"load"`
}

// PoolConfig はワーカープール設定
type PoolConfig struct {
	Workers  int    `yaml:"workers" json:"workers"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// ServerConfig はAPIサーバー設定
type ServerConfig struct {
	Addr            string   `yaml:"addr" json:"addr"`
	ShutdownTimeout string   `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	AllowedOrigins  []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// LoadConfig は負荷生成設定
type LoadConfig struct {
	Jobs        int    `yaml:"jobs" json:"jobs"`
	JobDuration string `yaml:"job_duration" json:"job_duration"`
	Submitters  int    `yaml:"submitters" json:"submitters"`
}

// Config は解決済みの設定
type Config struct {
	Workers         int
	LogLevel        logger.Level
	Addr            string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	Jobs            int
	JobDuration     time.Duration
	Submitters      int
}

// Default はデフォルト設定を返す
func Default() Config {
	return Config{
		Workers:         runtime.NumCPU(),
		LogLevel:        logger.LevelInfo,
		Addr:            ":8080",
		ShutdownTimeout: 5 * time.Second,
		AllowedOrigins:  []string{"*"},
		Jobs:            100,
		JobDuration:     10 * time.Millisecond,
		Submitters:      1,
	}
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// LoadEnv は .env ファイルを環境変数に読み込む
// 既に設定されている環境変数は上書きしない。ファイルが無い場合は何もしない
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv は環境変数の値で設定を上書きする
func (f *FileConfig) ApplyEnv() error {
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q is not an integer: %w", EnvWorkers, v, err)
		}
		f.Pool.Workers = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		f.Pool.LogLevel = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		f.Server.Addr = v
	}
	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		f.Server.ShutdownTimeout = v
	}
	return nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	if f.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must be non-negative")
	}
	if _, err := logger.ParseLevel(f.Pool.LogLevel); err != nil {
		return fmt.Errorf("pool.log_level: %w", err)
	}
	if f.Load.Jobs < 0 {
		return fmt.Errorf("load.jobs must be non-negative")
	}
	if f.Load.Submitters < 0 {
		return fmt.Errorf("load.submitters must be non-negative")
	}
	return nil
}

// Resolve はFileConfigを Config に変換する
// 未指定の項目はデフォルト値、workers: 0 はCPU数になる
func (f *FileConfig) Resolve() (Config, error) {
	config := Default()

	if f.Pool.Workers > 0 {
		config.Workers = f.Pool.Workers
	}
	if f.Pool.LogLevel != "" {
		level, err := logger.ParseLevel(f.Pool.LogLevel)
		if err != nil {
			return config, err
		}
		config.LogLevel = level
	}

	if f.Server.Addr != "" {
		config.Addr = f.Server.Addr
	}
	if f.Server.ShutdownTimeout != "" {
		d, err := time.ParseDuration(f.Server.ShutdownTimeout)
		if err != nil {
			return config, fmt.Errorf("invalid shutdown timeout: %w", err)
		}
		config.ShutdownTimeout = d
	}
	if len(f.Server.AllowedOrigins) > 0 {
		config.AllowedOrigins = f.Server.AllowedOrigins
	}

	if f.Load.Jobs > 0 {
		config.Jobs = f.Load.Jobs
	}
	if f.Load.JobDuration != "" {
		d, err := time.ParseDuration(f.Load.JobDuration)
		if err != nil {
			return config, fmt.Errorf("invalid job duration: %w", err)
		}
		config.JobDuration = d
	}
	if f.Load.Submitters > 0 {
		config.Submitters = f.Load.Submitters
	}

	return config, nil
}
