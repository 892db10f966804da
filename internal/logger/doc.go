// Package logger provides a leveled, thread-safe text logger.
//
// Each line carries a timestamp, the level, an optional source tag naming
// the emitting component (for example "pool" or "worker-3"), and the
// message:
//
//	[2006-01-02 15:04:05.000] [INFO] [worker-0] shutting down
//
// # Basic Usage
//
//	logger.Info("", "pool started")
//	logger.Debug("worker-1", "got a job; executing")
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Warn("pool", "worker %d exited: %v", id, err)
//
// Levels are parsed from configuration with ParseLevel.
package logger
