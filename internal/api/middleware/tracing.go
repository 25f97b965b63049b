package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Surfaces group API routes by audience on spans.
const (
	SurfaceIntake = "intake"
	SurfaceAdmin  = "admin"
	SurfaceOps    = "ops"
	SurfaceOther  = "other"
)

const (
	attrSurface   = attribute.Key("supportdesk.surface")
	attrRequestID = attribute.Key("supportdesk.request_id")
	attrDownload  = attribute.Key("supportdesk.download")
)

// Surface classifies a request path as intake, admin, ops or other.
func Surface(path string) string {
	switch {
	case path == "/v1/support":
		return SurfaceIntake
	case path == "/v1/admin" || strings.HasPrefix(path, "/v1/admin/"):
		return SurfaceAdmin
	case strings.HasPrefix(path, "/v1/ops/"):
		return SurfaceOps
	default:
		return SurfaceOther
	}
}

// Tracing starts a server span per request, continuing any W3C trace context
// the caller sent. Spans are named "<method> <route>" once chi has matched a
// route and "<method> <surface>" otherwise, so export and backup filenames
// never end up in span names. Rejected admin logins and rate-limited
// submissions are recorded as span events.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(serviceName + "/http")
	propagator := otel.GetTextMapPropagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			surface := Surface(r.URL.Path)

			ctx, span := tracer.Start(ctx, r.Method+" "+surface,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.URLScheme(scheme(r)),
					semconv.ServerAddress(r.Host),
					semconv.UserAgentOriginal(r.UserAgent()),
					semconv.ClientAddress(r.RemoteAddr),
					attrSurface.String(surface),
				),
			)
			defer span.End()

			if requestID := GetRequestID(ctx); requestID != "" {
				span.SetAttributes(attrRequestID.String(requestID))
			}

			wrapped := newTracingResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if route := routePattern(r); route != "" {
				span.SetName(r.Method + " " + route)
				span.SetAttributes(semconv.HTTPRoute(route))
			}
			span.SetAttributes(
				semconv.HTTPResponseStatusCode(wrapped.statusCode),
				semconv.HTTPResponseBodySize(int(wrapped.written)),
			)
			annotateOutcome(span, surface, wrapped)
		})
	}
}

func annotateOutcome(span trace.Span, surface string, rw *tracingResponseWriter) {
	switch status := rw.statusCode; {
	case status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(status))
	case status == http.StatusTooManyRequests:
		span.AddEvent("rate_limited", trace.WithAttributes(
			attribute.String("retry_after", rw.Header().Get("Retry-After")),
		))
	case status == http.StatusUnauthorized && surface != SurfaceIntake:
		span.AddEvent("admin_auth_rejected")
	}
	if strings.HasPrefix(rw.Header().Get("Content-Disposition"), "attachment") {
		span.SetAttributes(attrDownload.Bool(true))
	}
}

// tracingResponseWriter captures the status code and body size.
type tracingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newTracingResponseWriter(w http.ResponseWriter) *tracingResponseWriter {
	return &tracingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *tracingResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *tracingResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// routePattern returns the chi route pattern matched for r, or "" outside a chi router.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
