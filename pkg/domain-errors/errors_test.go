package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	t.Run("wrap keeps cause reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeStorage, "failed to store document")
		assert.True(t, HasCode(err, CodeStorage))
		assert.True(t, Is(err, cause))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("wrap nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})

	t.Run("has code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeNotFound, "document not found"))
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeValidation))
	})

	t.Run("status mapping", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, CodeValidation.HTTPStatus())
		assert.Equal(t, http.StatusNotFound, CodeNotFound.HTTPStatus())
		assert.Equal(t, http.StatusInternalServerError, CodeStorage.HTTPStatus())
		assert.False(t, CodeStorage.Client())
		assert.True(t, CodeForbidden.Client())
	})
}
