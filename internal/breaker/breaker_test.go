package breaker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/ralph/internal/breaker"
)

func TestBreaker(t *testing.T) {
	tests := map[string]struct {
		max        int
		start      int
		events     []bool // true success, false failure.
		expTripped bool
		expCount   int
	}{
		"Failures under the limit should not trip.": {
			max:      3,
			events:   []bool{false, false},
			expCount: 2,
		},
		"Reaching the limit should trip.": {
			max:        3,
			events:     []bool{false, false, false},
			expTripped: true,
			expCount:   3,
		},
		"A success should reset the count.": {
			max:      3,
			events:   []bool{false, false, true, false, false},
			expCount: 2,
		},
		"A persisted count should be honored.": {
			max:        3,
			start:      2,
			events:     []bool{false},
			expTripped: true,
			expCount:   3,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			b, err := breaker.New(test.max, test.start)
			require.NoError(err)

			for _, ok := range test.events {
				if ok {
					b.RecordSuccess()
				} else {
					b.RecordFailure()
				}
			}

			assert.Equal(test.expTripped, b.Tripped())
			assert.Equal(test.expCount, b.Count())
		})
	}
}

func TestBreakerReset(t *testing.T) {
	b, err := breaker.New(1, 0)
	require.NoError(t, err)

	assert.True(t, b.RecordFailure())
	b.Reset()
	assert.False(t, b.Tripped())
}

func TestNewBreakerInvalid(t *testing.T) {
	_, err := breaker.New(0, 0)
	assert.Error(t, err)
}
