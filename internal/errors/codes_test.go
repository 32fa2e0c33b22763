package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ErrCodeOK},
		{"plain", fmt.Errorf("boom"), ErrCodeInternal},
		{"table not found", TableNotFound("products"), ErrCodeTableNotFound},
		{"wrapped", fmt.Errorf("create: %w", InjectedFault("products.create", 0.5)), ErrCodeInjectedFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ValidationFailed("products", []string{"name is required"}, nil)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(StrategyNotFound("x")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(TableExists("products")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(InjectedFault("op", 1)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("other")))
}

func TestValidationFailedMessage(t *testing.T) {
	err := ValidationFailed("products", []string{"name is required", "price must be >= 0"}, nil)

	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "price must be >= 0")
	assert.Equal(t, "products", err.Details["table"])
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := RollbackFailed("bounded-cache", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsEngineError(fmt.Errorf("outer: %w", err)))
	assert.False(t, IsEngineError(cause))
}
