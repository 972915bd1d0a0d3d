package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/sma-exam-api/internal/service"
	"github.com/noah-isme/sma-exam-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-exam-api/pkg/telemetry"
)

const unmatchedRoute = "unmatched"

// Instrument opens a server span per request, continuing any inbound trace
// context, and records request metrics. Unmatched routes share one label so
// scanners cannot inflate cardinality.
func Instrument(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := telemetry.Tracer().Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if reqID := requestid.Value(c); reqID != "" {
			span.SetAttributes(attribute.String("request.id", reqID))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, status, time.Since(start))
	}
}
