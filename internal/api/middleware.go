package api

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// recoverer turns a panic below it into a 500 with a JSON detail.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.Error("panic serving request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			writeDetail(w, http.StatusInternalServerError, internalDetail(fmt.Sprint(rec)))
		}()
		next.ServeHTTP(w, r)
	})
}

type ctxKey int

const peerAddrKey ctxKey = 0

// peerAddr records the connection's remote address before RealIP replaces
// RemoteAddr with client-supplied forwarding headers.
func peerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func peerFrom(r *http.Request) string {
	if v, ok := r.Context().Value(peerAddrKey).(string); ok {
		return v
	}
	return r.RemoteAddr
}

// limitRuns applies the per-client run budget. Clients are keyed by the
// connection peer, never by X-Forwarded-For or X-Real-IP.
func (s *Server) limitRuns(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := s.cfg.RunLimit.Allow(clientKey(peerFrom(r)))
		if !res.Exceeded {
			next.ServeHTTP(w, r)
			return
		}
		s.metrics.ObserveRateLimited()
		s.log.Warn("run rate limited",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("peer", peerFrom(r)),
			zap.String("remote", r.RemoteAddr),
			zap.Int("limit", res.Limit),
		)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		writeDetail(w, http.StatusTooManyRequests, res.Reason)
	})
}

func clientKey(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
