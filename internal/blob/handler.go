package blob

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "carepay/pkg/domain-errors"
	"carepay/pkg/platform/httputil"
	"carepay/pkg/platform/sentinel"
)

// Handler serves signed download links. The signature is the authorization: the
// route sits outside the bearer-auth group.
type Handler struct {
	store  Store
	signer *Signer
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(store Store, signer *Signer, logger *slog.Logger) *Handler {
	return &Handler{store: store, signer: signer, logger: logger, now: time.Now}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/blobs/*", h.HandleDownload)
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "*")
	q := r.URL.Query()

	if !ValidKey(key) || !h.signer.Verify(key, q.Get("expires"), q.Get("signature"), h.now()) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "invalid or expired download link"))
		return
	}

	data, err := h.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "object not found"))
			return
		}
		h.logger.ErrorContext(ctx, "blob read failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read object"))
		return
	}

	w.Header().Set("Content-Type", DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
