package httputil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "carepay/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantStatus      int
		wantCode        string
		wantDescription string
	}{
		{"client error carries its message", dErrors.New(dErrors.CodeBadRequest, "invalid input"), http.StatusBadRequest, "bad_request", "invalid input"},
		{"unknown tenant", dErrors.New(dErrors.CodeNotFound, "tenant not found"), http.StatusNotFound, "not_found", "tenant not found"},
		{"pending reverify", dErrors.New(dErrors.CodeConflict, "document verification is still pending"), http.StatusConflict, "conflict", "document verification is still pending"},
		{"storage failure hides details", dErrors.Wrap(errors.New("pq: relation missing"), dErrors.CodeStorage, "failed to record document"), http.StatusInternalServerError, "storage_error", ""},
		{"uncoded error is internal", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Contains(t, rr.Body.String(), `"error":"`+tt.wantCode+`"`)
			if tt.wantDescription == "" {
				assert.NotContains(t, rr.Body.String(), "error_description")
			} else {
				assert.Contains(t, rr.Body.String(), tt.wantDescription)
			}
		})
	}
}

type pingRequest struct {
	Name string `json:"name"`
}

func (r *pingRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	decode := func(body string) (*pingRequest, *httptest.ResponseRecorder, bool) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/ping", strings.NewReader(body))
		out, ok := DecodeAndPrepare[pingRequest](rr, req, slog.New(slog.NewTextHandler(io.Discard, nil)), context.Background(), "req-12345678")
		return out, rr, ok
	}

	t.Run("valid body", func(t *testing.T) {
		out, _, ok := decode(`{"name":"front desk"}`)
		require.True(t, ok)
		assert.Equal(t, "front desk", out.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		_, rr, ok := decode("")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "request body is required")
	})

	t.Run("malformed body", func(t *testing.T) {
		_, rr, ok := decode("{")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		_, rr, ok := decode(`{}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "name is required")
	})

	t.Run("oversized body", func(t *testing.T) {
		_, rr, ok := decode(`{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "request body too large")
	})
}
