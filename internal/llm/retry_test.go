package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetry_Attempts(t *testing.T) {
	limited := MockResponse{Err: &ErrRateLimit{Vendor: "gemini", Err: errors.New("429")}}
	ok := MockResponse{Text: `{"is_correct":true,"score":100,"feedback":"Parfait.","correct_answer":""}`}
	down := MockResponse{Err: &ErrProviderUnavailable{Vendor: "gemini", Status: 503}}
	blocked := MockResponse{Err: fmt.Errorf("gemini: %w", ErrOutputBlocked)}

	tests := []struct {
		name      string
		responses []MockResponse
		calls     int
		wantErr   error
	}{
		{"first attempt succeeds", []MockResponse{ok}, 1, nil},
		{"rate limit then success", []MockResponse{limited, ok}, 2, nil},
		{"rate limit exhausts attempts", []MockResponse{limited, limited, limited, ok}, 3, &ErrRateLimit{}},
		{"outage is left to the caller", []MockResponse{down, ok}, 1, &ErrProviderUnavailable{}},
		{"blocked output is not retried", []MockResponse{blocked, ok}, 1, ErrOutputBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.responses...)
			resp, err := WithRetry(mock, retryConfig()).Generate(context.Background(), UserPrompt("", "mark", nil))

			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil || resp.Text != ok.Text {
					t.Fatalf("got %v, %v; want the marking verdict", resp, err)
				}
			case *ErrRateLimit:
				if !errors.As(err, &want) {
					t.Fatalf("expected ErrRateLimit, got %v", err)
				}
			case *ErrProviderUnavailable:
				if !errors.As(err, &want) {
					t.Fatalf("expected ErrProviderUnavailable, got %v", err)
				}
			default:
				if !errors.Is(err, want) {
					t.Fatalf("expected %v, got %v", want, err)
				}
			}
			if mock.CallCount() != tt.calls {
				t.Errorf("calls = %d, want %d", mock.CallCount(), tt.calls)
			}
		})
	}
}

func TestRetry_RetryAfterPastDeadlineFailsFast(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrRateLimit{RetryAfter: time.Minute, Err: errors.New("429")}},
		MockResponse{Text: `{"ok":true}`},
	)
	p := WithRetry(mock, retryConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	_, err := p.Generate(ctx, Request{})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("waited for a retry that could not finish before the deadline")
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrRateLimit{RetryAfter: time.Minute, Err: errors.New("429")}},
		MockResponse{Text: `{"ok":true}`},
	)
	p := WithRetry(mock, retryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := p.Generate(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestRetry_WaitBounds(t *testing.T) {
	r := &RetryProvider{cfg: RetryConfig{InitialWait: 100 * time.Millisecond, MaxWait: 300 * time.Millisecond, Multiplier: 2}}

	if got := r.wait(1, 5*time.Second); got != 5*time.Second {
		t.Errorf("retry-after hint ignored: %v", got)
	}
	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 5: 300 * time.Millisecond} {
		got := r.wait(attempt, 0)
		lo, hi := time.Duration(float64(base)*0.8), time.Duration(float64(base)*1.2)
		if got < lo || got > hi {
			t.Errorf("attempt %d: wait %v outside [%v, %v]", attempt, got, lo, hi)
		}
	}
}

func TestRetry_ZeroAttemptsStillCallsOnce(t *testing.T) {
	mock := NewMockProvider(MockResponse{Text: `{}`})
	p := WithRetry(mock, RetryConfig{})

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestRetry_ModelIDDelegates(t *testing.T) {
	p := WithRetry(NewMockProvider(), retryConfig())
	if p.ModelID() != "mock" {
		t.Fatalf("expected 'mock', got %q", p.ModelID())
	}
}
