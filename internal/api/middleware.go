package api

import (
	"net/http"
	"time"

	"threadpool/internal/logger"
	"threadpool/internal/worker"

	"github.com/go-chi/chi/v5/middleware"
)

// Submitter はジョブを受け付けるもの
type Submitter interface {
	Execute(job worker.Job) error
}

// Bounded はハンドラをプールのワーカー上で実行するミドルウェア
// 同時に実行されるハンドラ数はプールのサイズで制限される
// プールが停止している場合は 503 を返す
func Bounded(p Submitter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := make(chan struct{})
			var recovered any

			err := p.Execute(func() {
				defer close(done)
				// ハンドラの panic はワーカーを巻き込まずリクエスト側で再送出する
				defer func() { recovered = recover() }()
				next.ServeHTTP(w, r)
			})
			if err != nil {
				http.Error(w, "Worker pool is stopped", http.StatusServiceUnavailable)
				return
			}

			// ResponseWriter はハンドラ終了まで有効でなければならない
			<-done
			if recovered != nil {
				panic(recovered)
			}
		})
	}
}

// requestLogger はリクエストをデバッグログに出力する
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logger.Debug("api", "%s %s -> %d (%v) [%s]",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
