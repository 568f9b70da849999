package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sourceforge-bot/jobcore/internal/domain"
)

func zeroRand() float64 { return 0 }

func TestNextDelay_Disabled(t *testing.T) {
	policy := domain.RetryPolicy{Enabled: false, BaseDelay: time.Second}
	require.EqualValues(t, 0, NextDelayRand(policy, 0, zeroRand))
}

func TestNextDelay_Strategies(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		name       string
		strategy   domain.BackoffStrategy
		retryCount int
		want       int64
	}{
		{"constant first", domain.BackoffConstant, 0, 100},
		{"constant later", domain.BackoffConstant, 5, 100},
		{"linear first", domain.BackoffLinear, 0, 100},
		{"linear third", domain.BackoffLinear, 2, 300},
		{"exponential first", domain.BackoffExponential, 0, 100},
		{"exponential third", domain.BackoffExponential, 2, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := domain.RetryPolicy{
				Enabled:   true,
				Strategy:  tt.strategy,
				BaseDelay: base,
			}
			got := NextDelayRand(policy, tt.retryCount, zeroRand)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestNextDelay_ExponentialCap — scenario 6 из spec §8: base=1000, maxDelay=10000,
// jitter=[0,0]. NextDelay(10)=10000, NextDelay(20)=10000.
func TestNextDelay_ExponentialCap(t *testing.T) {
	policy := domain.RetryPolicy{
		Enabled:   true,
		Strategy:  domain.BackoffExponential,
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
	}

	require.EqualValues(t, 10000, NextDelayRand(policy, 10, zeroRand))
	require.EqualValues(t, 10000, NextDelayRand(policy, 20, zeroRand))
}

// TestNextDelay_JitterBounds — scenario 8 из spec §8: с jitter [a, b],
// base*2^n*(1+a) <= Delay(n) <= min(maxDelay, base*2^n*(1+b)).
func TestNextDelay_JitterBounds(t *testing.T) {
	policy := domain.RetryPolicy{
		Enabled:         true,
		Strategy:        domain.BackoffExponential,
		BaseDelay:       time.Second,
		MaxDelay:        0,
		MinJitterFactor: -0.1,
		MaxJitterFactor: 0.2,
	}

	base := float64(policy.BaseDelay.Milliseconds())
	for n := 0; n < 5; n++ {
		lower := int64(base * pow2(n) * 0.9)
		upper := int64(base * pow2(n) * 1.2)

		for i := 0; i < 50; i++ {
			got := NextDelay(policy, n)
			require.GreaterOrEqual(t, got, lower)
			require.LessOrEqual(t, got, upper)
		}
	}
}

func pow2(n int) float64 {
	f := 1.0
	for i := 0; i < n; i++ {
		f *= 2
	}
	return f
}

func TestShouldRetry(t *testing.T) {
	enabled := domain.RetryPolicy{Enabled: true}
	disabled := domain.RetryPolicy{Enabled: false}

	require.True(t, ShouldRetry(enabled, 0, 3, true))
	require.False(t, ShouldRetry(enabled, 0, 3, false), "handler must signal retryability")
	require.False(t, ShouldRetry(enabled, 3, 3, true), "budget exhausted at retryCount==maxRetries")
	require.False(t, ShouldRetry(disabled, 0, 3, true), "policy disabled overrides handler")
}
