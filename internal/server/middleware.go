package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"saas-control-plane/internal/audit"
	"saas-control-plane/internal/logging"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/httpx"
	"saas-control-plane/internal/platform/metrics"
	"saas-control-plane/internal/security"
	sessiondomain "saas-control-plane/internal/session/domain"
	userdomain "saas-control-plane/internal/user/domain"
)

const tracerName = "saas-control-plane/http"

// SessionAuthenticator checks that a token's session is live and its user active.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, p authctx.Principal) (*sessiondomain.Session, *userdomain.User, error)
}

// statusRecorder captures the response status for logging, metrics, and audit.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func quietRoute(route string) bool {
	return route == "/healthz" || route == "/readyz" || route == "/metrics"
}

// Instrument assigns a request id, records the client IP, starts a server span, recovers panics,
// logs the request, and records Prometheus metrics. It must run after route matching.
func Instrument(log zerolog.Logger) mux.MiddlewareFunc {
	tracer := otel.Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeTemplate(r)

			ctx, requestID := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
			ctx = WithClientIP(ctx, ClientIP(r))
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("http.route", route),
				))
			defer span.End()

			reqLog := log.With().Str("request_id", requestID).Logger()
			ctx = reqLog.WithContext(ctx)

			rec := &statusRecorder{ResponseWriter: w}
			rec.Header().Set("X-Request-ID", requestID)
			r = r.WithContext(ctx)

			defer func() {
				if p := recover(); p != nil {
					zerolog.Ctx(ctx).Error().
						Interface("panic", p).
						Bytes("stack", debug.Stack()).
						Msg("panic recovered in handler")
					if rec.status == 0 {
						httpx.WriteJSON(rec, http.StatusInternalServerError, httpx.ErrorResponse{
							Error:     "internal error",
							Code:      "internal",
							RequestID: requestID,
						})
					}
				}

				status := rec.code()
				elapsed := time.Since(start)
				span.SetAttributes(attribute.Int("http.response.status_code", status))
				if status >= http.StatusInternalServerError {
					span.SetStatus(otelcodes.Error, http.StatusText(status))
				}
				metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
				metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())

				level := zerolog.InfoLevel
				switch {
				case status >= http.StatusInternalServerError:
					level = zerolog.ErrorLevel
				case status >= http.StatusBadRequest:
					level = zerolog.WarnLevel
				case quietRoute(route):
					level = zerolog.DebugLevel
				}
				zerolog.Ctx(ctx).WithLevel(level).
					Str("method", r.Method).
					Str("route", route).
					Int("status", status).
					Dur("duration", elapsed).
					Msg("request")
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// Authenticate validates the bearer access token, checks that its session is live, and puts the
// principal in the request context. Any failure is 401.
func Authenticate(tokens *security.TokenProvider, sessions SessionAuthenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := zerolog.Ctx(r.Context())
			token := extractBearer(r)
			if token == "" {
				httpx.WriteError(w, r, *log, apperr.ErrUnauthenticated)
				return
			}
			claims, err := tokens.ValidateAccess(token)
			if err != nil {
				log.Debug().Err(err).Msg("rejected access token")
				httpx.WriteError(w, r, *log, apperr.ErrUnauthenticated)
				return
			}
			p := authctx.Principal{UserID: claims.Subject, Email: claims.Email, SessionID: claims.SessionID}
			_, user, err := sessions.Authenticate(r.Context(), p)
			if err != nil {
				httpx.WriteError(w, r, *log, err)
				return
			}
			p.Email = user.Email
			log.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", p.UserID).Str("session_id", p.SessionID)
			})
			next.ServeHTTP(w, r.WithContext(authctx.WithPrincipal(r.Context(), p)))
		})
	}
}

// Audit records one audit entry for every successful mutating request on an authenticated route.
// The organization comes from the {orgID} path variable or, when the route has none, from the
// handler via audit.SetOrg. Routes in skip are audited by their services instead.
func Audit(logger audit.AuditLogger, skip map[string]bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			route := routeTemplate(r)
			ctx, targetOrg := audit.WithTarget(r.Context())
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.code() >= http.StatusBadRequest || skip[r.Method+" "+route] {
				return
			}
			orgID := mux.Vars(r)["orgID"]
			if orgID == "" {
				orgID = targetOrg()
			}
			var userID string
			if p, ok := authctx.PrincipalFrom(r.Context()); ok {
				userID = p.UserID
			}
			ar := audit.ParseRoute(r.Method, route)
			meta := ""
			if target := mux.Vars(r)["userID"]; target != "" {
				meta = fmt.Sprintf(`{"target_user_id":%q}`, target)
			}
			logger.LogEvent(ctx, orgID, userID, ar.Action, ar.Resource, meta)
		})
	}
}
