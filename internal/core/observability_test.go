package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"engagement/pkg/domain"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func TestServiceReportsOperations(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	tracer := NewJSONTracer(nil)
	svc, _ := newTestService(t, WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()
	seedProject(t, svc, "p1")

	if _, err := svc.PushUpdate(ctx, "p1", insightsPayload("ok"), false); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := svc.PushUpdate(ctx, "ghost", insightsPayload("nope"), false); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !metrics.has("PushUpdate", true) || !metrics.has("PushUpdate", false) {
		t.Fatalf("expected success and failure observations, got %+v", metrics.calls)
	}

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" || !strings.Contains(entries[1].Error, "not found") {
		t.Fatalf("unexpected spans %+v", entries)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "PushUpdate", true, 15*time.Millisecond)
	rec.Observe(ctx, "PushUpdate", true, 5*time.Millisecond)
	rec.Observe(ctx, "PushUpdate", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("PushUpdate", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("PushUpdate", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.duration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if _, err := NewPrometheusMetricsRecorder(nil); err != nil {
		t.Fatalf("unregistered recorder: %v", err)
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	buf := &bytes.Buffer{}
	tracer := NewJSONTracer(buf)
	_, span := tracer.Start(context.Background(), "IssueToken")
	span.End(errors.New("boom"))
	span.End(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("span must be written once, got %d lines", len(lines))
	}
	var entry JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Operation != "IssueToken" || entry.Status != "error" || entry.Error != "boom" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.EndedAt.Before(entry.StartedAt) {
		t.Fatalf("span ended before it started")
	}
}

func TestNoopObservability(_ *testing.T) {
	noopMetrics{}.Observe(context.Background(), "op", true, time.Second)
	_, span := noopTracer{}.Start(context.Background(), "op")
	span.End(nil)
}
