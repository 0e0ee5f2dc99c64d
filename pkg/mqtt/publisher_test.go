package mqtt

import (
	"io"
	"testing"
	"time"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/logx"
)

func testLogger() *logx.Logger {
	return logx.NewLoggerWithWriter("error", "mqtt-test", io.Discard)
}

func TestConnect_DisabledConfigIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	p := NewPublisher(cfg, testLogger(), 0, 0)

	if err := p.Connect(); err != nil {
		t.Fatalf("expected no error connecting a disabled publisher, got %v", err)
	}
	if p.IsConnected() {
		t.Fatal("expected disabled publisher to report not connected")
	}
}

func TestPublishSuggestions_SkippedWhenNotConnected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	p := NewPublisher(cfg, testLogger(), 10, 10)

	// Never Connect()'d, so p.connected stays false; this must not panic
	// even though p.client is nil.
	p.PublishSuggestions(pkg.InferenceResponse{})

	if !p.LastPublish().IsZero() {
		t.Fatal("expected no publish to have occurred")
	}
}

func TestPublishFeedback_SkippedWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	p := NewPublisher(cfg, testLogger(), 10, 10)

	p.PublishFeedback(pkg.FeedbackRecord{RuleID: 1, Outcome: pkg.OutcomeAccept, Timestamp: time.Now()})

	if !p.LastPublish().IsZero() {
		t.Fatal("expected no publish to have occurred while disabled")
	}
}

func TestNewPublisher_DefaultsRateAndBurstWhenNonPositive(t *testing.T) {
	p := NewPublisher(DefaultConfig(), testLogger(), -1, 0)
	if p.limiter == nil {
		t.Fatal("expected a non-nil limiter")
	}
	if !p.limiter.Allow() {
		t.Fatal("expected at least one token available from the default burst")
	}
}
