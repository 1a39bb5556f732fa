package otel

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "sigserver/api"

type APIErrorInfo struct {
	Status  int
	Code    string
	Message string
}

type apiErrorKey struct{}

// HTTPMiddleware wraps next in a server span named after route. Incoming
// trace context headers are honoured.
func HTTPMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		tracker := &APIErrorInfo{}
		ctx = context.WithValue(ctx, apiErrorKey{}, tracker)
		ctx, span := otelapi.Tracer(instrumentationName).Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if tracker.Status != 0 || recorder.status >= http.StatusInternalServerError {
			message := tracker.Message
			if message == "" {
				message = http.StatusText(recorder.status)
			}
			span.SetStatus(codes.Error, message)
			span.RecordError(errors.New(message), trace.WithAttributes(
				attribute.String("error.code", tracker.Code),
			))
		}
	})
}

// RecordAPIError attaches an API error to the request span.
func RecordAPIError(ctx context.Context, info APIErrorInfo) {
	if ctx == nil {
		return
	}
	tracker, ok := ctx.Value(apiErrorKey{}).(*APIErrorInfo)
	if !ok || tracker == nil {
		return
	}
	*tracker = info
}

func RecordSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if ctx == nil || name == "" {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(status int) {
	recorder.status = status
	recorder.ResponseWriter.WriteHeader(status)
}

func (recorder *statusRecorder) Unwrap() http.ResponseWriter {
	return recorder.ResponseWriter
}

func (recorder *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := recorder.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	recorder.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
