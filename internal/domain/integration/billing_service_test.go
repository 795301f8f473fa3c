package integration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusError(t *testing.T) {
	tests := []struct {
		code      int
		sentinel  error
		retryable bool
	}{
		{429, ErrRateLimited, true},
		{401, ErrAuthFailed, false},
		{404, ErrRecordNotFound, false},
		{503, ErrServiceUnavailable, true},
		{400, ErrRequestFailed, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("HTTP %d", tt.code), func(t *testing.T) {
			err := fmt.Errorf("get order: %w", &StatusError{StatusCode: tt.code})
			assert.True(t, errors.Is(err, tt.sentinel))

			var se *StatusError
			assert.True(t, errors.As(err, &se))
			assert.Equal(t, tt.retryable, se.Retryable())
		})
	}
}

func TestCustomer_DisplayName(t *testing.T) {
	assert.Equal(t, "Ana Ruiz", (&Customer{GivenName: "Ana", FamilyName: "Ruiz"}).DisplayName())
	assert.Equal(t, "Ruiz", (&Customer{FamilyName: "Ruiz"}).DisplayName())
	assert.Equal(t, "coach", (&Customer{Nickname: "coach"}).DisplayName())
}
