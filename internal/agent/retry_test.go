package agent

import (
	"errors"
	"testing"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota", errors.New("Quota Exceeded for project"), true},
		{"http 429", errors.New("googleapi: Error 429: Resource exhausted"), true},
		{"http 503", errors.New("503 Service Unavailable"), true},
		{"overloaded", errors.New("model is overloaded, try again"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded: request timeout"), true},
		{"auth failure", errors.New("invalid api key"), false},
		{"bad request", errors.New("400 invalid argument"), false},
		{"safety block", errors.New("response blocked by safety settings"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewLimiter(t *testing.T) {
	if l := newLimiter(0, 5); l != nil {
		t.Error("zero rps should disable limiting")
	}
	if l := newLimiter(-1, 5); l != nil {
		t.Error("negative rps should disable limiting")
	}
	l := newLimiter(10, 0)
	if l == nil {
		t.Fatal("positive rps should build a limiter")
	}
	if l.Burst() != 1 {
		t.Errorf("burst = %d, want 1 when unset", l.Burst())
	}
}
