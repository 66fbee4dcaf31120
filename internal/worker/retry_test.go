package worker

import (
	"testing"
	"time"
)

func TestRetryPolicyExponentialBackoff(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 2 * time.Minute, BackoffFactor: 2}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{4, 16 * time.Minute},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestRetryPolicyClampsToMaxDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 2 * time.Minute, BackoffFactor: 2, MaxDelay: 5 * time.Minute}

	if got := policy.NextDelay(3); got != 5*time.Minute {
		t.Errorf("expected clamp to 5m, got %v", got)
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	var policy RetryPolicy

	if got := policy.NextDelay(1); got != 2*time.Minute {
		t.Errorf("expected default initial delay 2m, got %v", got)
	}
	if got := policy.NextDelay(0); got < time.Second {
		t.Errorf("expected at least 1s floor, got %v", got)
	}
}
