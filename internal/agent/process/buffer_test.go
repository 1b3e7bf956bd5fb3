package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitedBuffer(t *testing.T) {
	tests := map[string]struct {
		max    int
		writes []string
		exp    string
	}{
		"writes under the limit should be kept": {
			max:    10,
			writes: []string{"abc", "def"},
			exp:    "abcdef",
		},
		"writes over the limit should keep the newest bytes": {
			max:    5,
			writes: []string{"abc", "def"},
			exp:    "bcdef",
		},
		"a single write bigger than the limit should keep its tail": {
			max:    3,
			writes: []string{"abcdef"},
			exp:    "def",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			b := &limitedBuffer{max: test.max}
			for _, w := range test.writes {
				n, err := b.Write([]byte(w))
				assert.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, test.exp, b.String())
		})
	}
}
