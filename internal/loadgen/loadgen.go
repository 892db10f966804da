// Package loadgen provides a synthetic job generator for exercising a
// worker pool.
package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"threadpool/internal/logger"
	"threadpool/internal/worker"
)

// Submitter はジョブを受け付けるもの
// *worker.Pool がこれを満たす
type Submitter interface {
	Execute(job worker.Job) error
}

// Config は負荷生成の設定
type Config struct {
	Jobs        int           // 投入するジョブ数
	JobDuration time.Duration // 各ジョブの実行時間
	Submitters  int           // 投入側ゴルーチン数（0で1）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Jobs:        100,
		JobDuration: 10 * time.Millisecond,
		Submitters:  1,
	}
}

// Result は投入結果
type Result struct {
	Submitted uint64
	Rejected  uint64
	Elapsed   time.Duration
}

// Generator は合成ジョブを投入する
type Generator struct {
	config    Config
	submitter Submitter

	submitted atomic.Uint64
	rejected  atomic.Uint64
	executed  atomic.Uint64
}

// New は新しいGeneratorを作成する
func New(s Submitter, config Config) *Generator {
	if config.Submitters <= 0 {
		config.Submitters = 1
	}
	return &Generator{
		config:    config,
		submitter: s,
	}
}

// Run は設定された数のジョブを投入する
// ctx の終了、またはジョブが拒否された時点で投入を止める
// ジョブの完了は待たない
func (g *Generator) Run(ctx context.Context) Result {
	start := time.Now()

	var next atomic.Int64
	var stop atomic.Bool
	var wg sync.WaitGroup

	for range g.config.Submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if stop.Load() || ctx.Err() != nil {
					return
				}
				if next.Add(1) > int64(g.config.Jobs) {
					return
				}
				if err := g.submitter.Execute(g.createJob()); err != nil {
					g.rejected.Add(1)
					if stop.CompareAndSwap(false, true) {
						logger.Warn("loadgen", "Job rejected, stopping submission: %v", err)
					}
					return
				}
				g.submitted.Add(1)
			}
		}()
	}
	wg.Wait()

	result := Result{
		Submitted: g.submitted.Load(),
		Rejected:  g.rejected.Load(),
		Elapsed:   time.Since(start),
	}
	logger.Info("loadgen", "Submitted %d jobs (%d rejected) in %v",
		result.Submitted, result.Rejected, result.Elapsed)

	return result
}

func (g *Generator) createJob() worker.Job {
	d := g.config.JobDuration
	return func() {
		if d > 0 {
			time.Sleep(d)
		}
		g.executed.Add(1)
	}
}

// Executed は実行が完了したジョブ数を返す
func (g *Generator) Executed() uint64 {
	return g.executed.Load()
}
