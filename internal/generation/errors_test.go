package generation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", fmt.Errorf("%w: 503", ErrTransientFailure), true},
		{"invalid response", fmt.Errorf("%w: bad json", ErrInvalidResponse), true},
		{"unclassified", errors.New("connection reset"), true},
		{"blocked", fmt.Errorf("%w: SAFETY", ErrContentBlocked), false},
		{"bad config", ErrInvalidConfig, false},
		{"empty input", ErrEmptyInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
