package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T, f *loginFixture) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	f.svc.Tracer = tp.Tracer(tracerName)
	return rec
}

func TestLoginRecordsSpan(t *testing.T) {
	f := newLoginFixture(t)
	rec := withRecorder(t, f)
	acc := seedAccount(t, f.store)

	ctx, logs := captureLogs(context.Background())
	_, err := f.svc.Login(ctx, TOTPLoginRequest{Ticket: f.issue(t, acc.ID), Code: codeAt(t, testSecret, f.now)})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	require.Equal(t, "TOTPLoginService.Login", span.Name())
	require.Equal(t, codes.Unset, span.Status().Code)
	require.Contains(t, span.Attributes(), attribute.String("account.id", acc.ID))

	// The audit record carries the span's trace id.
	var audit map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(logs.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["msg"] == "account logged in via a TOTP code" {
			audit = rec
		}
	}
	require.NotNil(t, audit)
	require.Equal(t, span.SpanContext().TraceID().String(), audit["trace_id"])
}

func TestLoginSpanRecordsFailure(t *testing.T) {
	f := newLoginFixture(t)
	rec := withRecorder(t, f)

	_, err := f.svc.Login(context.Background(), TOTPLoginRequest{Ticket: "unknown", Code: "123456"})
	require.ErrorIs(t, err, ErrInvalidTicket)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, ErrInvalidTicket.Error(), spans[0].Status().Description)
}
