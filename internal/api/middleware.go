package api

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/metrics"
)

// ctxKey types the values the middleware chain stores in a request context.
type ctxKey int

const (
	UserIDKey ctxKey = iota + 1
	TraceIDKey
	RequestIDKey

	accessLogKey
)

// accessLog lets middleware running inside route groups hand the validated
// user back to LoggingMiddleware.
type accessLog struct {
	userID string
}

// Request headers read and echoed by the middleware chain.
const (
	UserIDHeader    = "X-User-ID"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

var tracer = otel.Tracer("rimborsami-api")

// maxUserIDLen bounds the X-User-ID header; it becomes a cache and
// database key.
const maxUserIDLen = 128

// UserMiddleware extracts the user ID from the X-User-ID header
// and adds it to the request context.
func UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			writeError(w, http.StatusBadRequest, "X-User-ID header is required")
			return
		}
		if len(userID) > maxUserIDLen || strings.ContainsFunc(userID, unicode.IsControl) {
			writeError(w, http.StatusBadRequest, "X-User-ID header is invalid")
			return
		}

		if al, ok := r.Context().Value(accessLogKey).(*accessLog); ok {
			al.userID = userID
		}
		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware enforces a fixed-window request limit per user.
// Counter failures let the request through.
func RateLimitMiddleware(cache domain.Cache, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cache == nil || limit <= 0 {
			return next
		}
		if window <= 0 {
			window = time.Minute
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			count, err := cache.IncrementCounter(ctx, GetUserID(ctx), "requests", window)
			if err != nil {
				logger.WarnContext(ctx, "rate limit counter failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TracingMiddleware opens a server span per request and stores the request
// and trace ids in the context. The span is renamed to the matched route
// once routing has happened. Without an OpenTelemetry SDK the trace id
// falls back to the request id.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" || len(reqID) > maxUserIDLen {
			reqID = uuid.NewString()
		}

		ctx, span := tracer.Start(r.Context(), "HTTP "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("rimborsami.request_id", reqID),
			),
		)
		defer span.End()

		traceID := reqID
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		ctx = context.WithValue(ctx, RequestIDKey, reqID)
		ctx = context.WithValue(ctx, TraceIDKey, traceID)
		w.Header().Set(RequestIDHeader, reqID)
		w.Header().Set(TraceIDHeader, traceID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := statusOf(ww)
		span.SetName(r.Method + " " + routeOf(r))
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// LoggingMiddleware writes one structured line per request. Server errors
// log at error level. The user is the one UserMiddleware accepted; requests
// it never saw log the raw header, cut to maxUserIDLen.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			al := &accessLog{}
			r = r.WithContext(context.WithValue(r.Context(), accessLogKey, al))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := statusOf(ww)
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			ctx := r.Context()
			logger.Log(ctx, level, "request served",
				slog.String("method", r.Method),
				slog.String("route", routeOf(r)),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("elapsed", time.Since(began)),
				slog.String("user_id", al.loggedUser(r)),
				slog.Any("request_id", ctx.Value(RequestIDKey)),
				slog.String("trace_id", GetTraceID(ctx)),
			)
		})
	}
}

func (al *accessLog) loggedUser(r *http.Request) string {
	if al.userID != "" {
		return al.userID
	}
	raw := r.Header.Get(UserIDHeader)
	if len(raw) > maxUserIDLen {
		raw = raw[:maxUserIDLen]
	}
	return raw
}

// MetricsMiddleware records request latency by route pattern.
func MetricsMiddleware(rec metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			rec.HTTPRequest(r.Method, routeOf(r), statusOf(ww), time.Since(start))
		})
	}
}

// CORSMiddleware lets the web app call the API. Credentials are only
// allowed when origins are listed explicitly, without a wildcard.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	credentials := !slices.Contains(allowedOrigins, "*")
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", UserIDHeader, RequestIDHeader, TraceIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, TraceIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: credentials,
		MaxAge:           86400,
	})
}

// RecoverMiddleware turns a handler panic into a 500 and logs the stack.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func RecoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				logger.ErrorContext(r.Context(), "handler panicked",
					slog.Any("panic", rv),
					slog.String("route", routeOf(r)),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// statusOf reports 200 for handlers that wrote a body without a header.
func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// routeOf returns the matched chi pattern. Unmatched paths share one
// label so metrics and span names stay low-cardinality.
func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// GetUserID returns the user set by UserMiddleware, or "".
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

// GetTraceID returns the trace id set by TracingMiddleware, or "".
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}
