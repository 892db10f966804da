// Package main is the entry point for threadpool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threadpool/internal/api"
	"threadpool/internal/config"
	"threadpool/internal/events"
	"threadpool/internal/loadgen"
	"threadpool/internal/logger"
	"threadpool/internal/metrics"
	"threadpool/internal/worker"
)

var (
	version = "dev"
)

// flags はコマンドラインフラグ
type flags struct {
	configFile  string
	workers     int
	jobs        int
	jobDuration time.Duration
	submitters  int
	logLevel    string
	serverMode  bool
	addr        string
	showVersion bool
}

func main() {
	var f flags
	flag.StringVar(&f.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.IntVar(&f.workers, "workers", 0, "ワーカー数 (0で設定値またはCPU数)")
	flag.IntVar(&f.jobs, "jobs", 0, "投入するジョブ数")
	flag.DurationVar(&f.jobDuration, "job-duration", 0, "各ジョブの実行時間 (例: 10ms)")
	flag.IntVar(&f.submitters, "submitters", 0, "投入側ゴルーチン数")
	flag.StringVar(&f.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	flag.BoolVar(&f.serverMode, "server", false, "APIサーバーモードで起動")
	flag.StringVar(&f.addr, "addr", "", "サーバーアドレス (例: :8080)")
	flag.BoolVar(&f.showVersion, "version", false, "バージョンを表示")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `threadpool - Fixed-size worker pool

Usage:
  threadpool [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # 4ワーカーで1000ジョブを実行
  threadpool --workers 4 --jobs 1000 --job-duration 5ms

  # 設定ファイルから実行
  threadpool --config threadpool.yaml

  # APIサーバーモードで起動
  threadpool --server --addr :3000
`)
	}

	flag.Parse()

	if f.showVersion {
		fmt.Printf("threadpool version %s\n", version)
		return
	}

	cfg, err := buildConfig(f)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}
	logger.Default.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	defer bus.Close()

	pool := worker.NewWithConfig(worker.PoolConfig{
		Size:    cfg.Workers,
		Logger:  logger.Default,
		Metrics: metrics.New(),
		Events:  bus,
	})
	defer pool.Stop()

	if f.serverMode {
		if err := runServer(ctx, cfg, pool, bus); err != nil {
			logger.Error("", "サーバーエラー: %v", err)
			pool.Stop()
			os.Exit(1)
		}
		return
	}

	runLoad(ctx, cfg, pool)
}

// buildConfig は .env、設定ファイル、環境変数、フラグの順に設定を構築する
func buildConfig(f flags) (config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return config.Config{}, err
	}

	fileConfig := &config.FileConfig{}
	if f.configFile != "" {
		loaded, err := config.LoadFile(f.configFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		fileConfig = loaded
	}

	if err := fileConfig.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	if err := fileConfig.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("設定検証エラー: %w", err)
	}

	cfg, err := fileConfig.Resolve()
	if err != nil {
		return cfg, fmt.Errorf("設定変換エラー: %w", err)
	}

	// フラグでオーバーライド
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if f.jobs > 0 {
		cfg.Jobs = f.jobs
	}
	if f.jobDuration > 0 {
		cfg.JobDuration = f.jobDuration
	}
	if f.submitters > 0 {
		cfg.Submitters = f.submitters
	}
	if f.logLevel != "" {
		level, err := logger.ParseLevel(f.logLevel)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = level
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}

	return cfg, nil
}

// runLoad は合成ジョブを投入し、プール停止後にレポートを出力する
func runLoad(ctx context.Context, cfg config.Config, pool *worker.Pool) {
	fmt.Println("threadpool - Fixed-size worker pool")
	fmt.Println("===================================")
	fmt.Printf("Workers: %d, Jobs: %d, Job duration: %v, Submitters: %d\n",
		cfg.Workers, cfg.Jobs, cfg.JobDuration, cfg.Submitters)
	fmt.Println("===================================")
	fmt.Println()

	gen := loadgen.New(pool, loadgen.Config{
		Jobs:        cfg.Jobs,
		JobDuration: cfg.JobDuration,
		Submitters:  cfg.Submitters,
	})
	result := gen.Run(ctx)

	pool.Stop()

	snap := pool.Metrics().Snapshot()
	fmt.Println()
	fmt.Println("Report")
	fmt.Println("------")
	fmt.Printf("Submitted:   %d\n", result.Submitted)
	fmt.Printf("Rejected:    %d\n", result.Rejected)
	fmt.Printf("Executed:    %d\n", gen.Executed())
	fmt.Printf("Failed:      %d\n", snap.Failed)
	fmt.Printf("Avg latency: %v\n", snap.AverageLatency)
	fmt.Printf("P99 latency: %v\n", snap.P99Latency)
	fmt.Printf("Elapsed:     %v\n", snap.Elapsed)
}

// runServer はAPIサーバーを ctx の終了まで起動する
func runServer(ctx context.Context, cfg config.Config, pool *worker.Pool, bus *events.Bus) error {
	fmt.Println("threadpool - API Server")
	fmt.Println("=======================")
	fmt.Printf("Starting server on %s with %d workers\n", cfg.Addr, cfg.Workers)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	server := api.NewServer(api.Config{
		Addr:            cfg.Addr,
		AllowedOrigins:  cfg.AllowedOrigins,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, pool, bus)

	return server.Start(ctx)
}
