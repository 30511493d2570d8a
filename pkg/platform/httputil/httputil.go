// Package httputil centralises JSON encoding and domain error translation for handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "carepay/pkg/domain-errors"
)

// maxBodyBytes bounds JSON request bodies. Upload payloads are base64 so the limit
// sits above the decoded document ceiling.
const maxBodyBytes = 16 << 20

// Validatable is implemented by request bodies that validate and normalise themselves.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError translates err into a JSON error envelope. Server-side failures never
// echo their message so storage details do not leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	msg := ""
	if de, ok := dErrors.As(err); ok {
		code = de.Code
		msg = de.Message
	}
	resp := errorResponse{Error: string(code)}
	if code.Client() {
		resp.ErrorDescription = msg
	}
	WriteJSON(w, code.HTTPStatus(), resp)
}

// DecodeAndPrepare decodes a JSON body into T and runs its validation. On failure it
// writes the error response itself and returns ok=false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req := PT(new(T))
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(req); err != nil {
		var tooLarge *http.MaxBytesError
		msg := "invalid request body"
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		} else if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		logger.WarnContext(ctx, "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, msg))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return (*T)(req), true
}
