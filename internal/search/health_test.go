package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newHealthTestService() *Service {
	return NewService(specsOf(&fakeProvider{name: "alpha"}), time.Second)
}

func TestProviderBlockedAfterThresholdFailures(t *testing.T) {
	service := newHealthTestService()
	now := time.Now()

	for i := 0; i < providerFailureThreshold; i++ {
		if blocked, _, _ := service.isProviderBlocked("alpha", now); blocked {
			t.Fatalf("provider blocked after only %d failures", i)
		}
		service.recordProviderResult("alpha", "aspirin", errors.New("upstream 500"), 10*time.Millisecond, now)
	}

	blocked, until, lastErr := service.isProviderBlocked("alpha", now)
	if !blocked {
		t.Fatal("expected provider blocked at threshold")
	}
	if until.Sub(now) != providerBlockBase {
		t.Fatalf("expected base block duration, got %v", until.Sub(now))
	}
	if lastErr != "upstream 500" {
		t.Fatalf("unexpected last error %q", lastErr)
	}
}

func TestProviderBlockExpires(t *testing.T) {
	service := newHealthTestService()
	now := time.Now()

	for i := 0; i < providerFailureThreshold; i++ {
		service.recordProviderResult("alpha", "aspirin", errors.New("boom"), 0, now)
	}

	later := now.Add(providerBlockBase + time.Second)
	if blocked, _, _ := service.isProviderBlocked("alpha", later); blocked {
		t.Fatal("expected block to expire")
	}
}

func TestProviderSuccessResetsFailures(t *testing.T) {
	service := newHealthTestService()
	now := time.Now()

	service.recordProviderResult("alpha", "aspirin", errors.New("boom"), 0, now)
	service.recordProviderResult("alpha", "aspirin", errors.New("boom"), 0, now)
	service.recordProviderResult("alpha", "aspirin", nil, 5*time.Millisecond, now)
	service.recordProviderResult("alpha", "aspirin", errors.New("boom"), 0, now)
	service.recordProviderResult("alpha", "aspirin", errors.New("boom"), 0, now)

	if blocked, _, _ := service.isProviderBlocked("alpha", now); blocked {
		t.Fatal("expected no block after a success reset the streak")
	}
}

func TestExponentialBlockDuration(t *testing.T) {
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 15 * time.Minute},
		{10, 15 * time.Minute},
	}
	for _, tc := range cases {
		if got := exponentialBlockDuration(tc.failures); got != tc.want {
			t.Errorf("exponentialBlockDuration(%d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

func TestIsTimeoutLikeError(t *testing.T) {
	if !isTimeoutLikeError(context.DeadlineExceeded) {
		t.Fatal("expected deadline exceeded to classify as timeout")
	}
	if !isTimeoutLikeError(fmt.Errorf("provider alpha timeout after 8s: %w", context.DeadlineExceeded)) {
		t.Fatal("expected wrapped timeout to classify as timeout")
	}
	if isTimeoutLikeError(errors.New("parse error")) {
		t.Fatal("expected parse error to not classify as timeout")
	}
	if isTimeoutLikeError(nil) {
		t.Fatal("expected nil to not classify as timeout")
	}
}

func TestProviderDiagnosticsReflectHealthState(t *testing.T) {
	service := NewService(specsOf(
		&fakeProvider{name: "beta"},
		&fakeProvider{name: "alpha"},
	), time.Second)
	now := time.Now()

	for i := 0; i < providerFailureThreshold; i++ {
		service.recordProviderResult("beta", "aspirin", errors.New("boom"), 20*time.Millisecond, now)
	}
	service.recordProviderResult("alpha", "aspirin", nil, 5*time.Millisecond, now)

	items := service.ProviderDiagnostics()
	if len(items) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(items))
	}
	if items[0].Name != "alpha" || items[1].Name != "beta" {
		t.Fatalf("expected sorted diagnostics, got %v, %v", items[0].Name, items[1].Name)
	}

	alpha := items[0]
	if alpha.TotalRequests != 1 || alpha.TotalFailures != 0 || alpha.BlockedUntilRFC3339 != "" {
		t.Fatalf("unexpected alpha diagnostics: %#v", alpha)
	}

	beta := items[1]
	if beta.ConsecutiveFailures != providerFailureThreshold {
		t.Fatalf("expected %d consecutive failures, got %d", providerFailureThreshold, beta.ConsecutiveFailures)
	}
	if beta.BlockedUntilRFC3339 == "" {
		t.Fatal("expected blockedUntil set for beta")
	}
	if beta.LastError != "boom" {
		t.Fatalf("unexpected last error %q", beta.LastError)
	}
	if !strings.Contains(beta.LastTerm, "aspirin") {
		t.Fatalf("unexpected last term %q", beta.LastTerm)
	}
}
