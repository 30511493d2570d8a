package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carepay/internal/identity/models"
	"carepay/internal/identity/service"
	"carepay/internal/tenant"
	id "carepay/pkg/domain"
	dErrors "carepay/pkg/domain-errors"
	"carepay/pkg/platform/httputil"
	"carepay/pkg/requestcontext"
)

// Service defines the interface for identity document operations.
type Service interface {
	Upload(ctx context.Context, tenantID id.TenantID, cmd service.UploadCommand) (*service.UploadResult, error)
	Get(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*service.DocumentView, error)
	ListForPatient(ctx context.Context, tenantID id.TenantID, ref id.PatientRefID) ([]*service.DocumentView, error)
	DownloadURL(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*service.DownloadLink, error)
	Reverify(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*models.IdentityDocument, error)
}

// Handler serves the identity document endpoints. Routes expect the auth and tenant
// middleware to have run; the tenant comes from the request scope, never the body.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identity/upload", h.HandleUpload)
	r.Get("/identity/{document_id}", h.HandleGet)
	r.Get("/identity/{document_id}/download", h.HandleDownloadURL)
	r.Post("/identity/{document_id}/reverify", h.HandleReverify)
	r.Get("/patients/{patient_ref_id}/identity-documents", h.HandleListForPatient)
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[UploadRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Upload(ctx, tenantID, req.command())
	if err != nil {
		h.writeServiceError(ctx, w, "upload failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, UploadResponse{
		DocumentID: res.DocumentID.String(),
		Status:     res.Status,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	view, err := h.service.Get(ctx, tenantID, docID)
	if err != nil {
		h.writeServiceError(ctx, w, "get document failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(view))
}

func (h *Handler) HandleDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	link, err := h.service.DownloadURL(ctx, tenantID, docID)
	if err != nil {
		h.writeServiceError(ctx, w, "download url failed", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, DownloadResponse{DownloadURL: link.URL, ExpiresAt: link.ExpiresAt})
}

func (h *Handler) HandleReverify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Reverify(ctx, tenantID, docID); err != nil {
		h.writeServiceError(ctx, w, "reverify failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, ReverifyResponse{DocumentID: docID.String(), Status: "queued"})
}

func (h *Handler) HandleListForPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.requireTenant(w, r)
	if !ok {
		return
	}
	ref, err := id.ParsePatientRefID(chi.URLParam(r, "patient_ref_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	views, err := h.service.ListForPatient(ctx, tenantID, ref)
	if err != nil {
		h.writeServiceError(ctx, w, "list documents failed", err)
		return
	}
	resp := ListResponse{Documents: make([]DocumentResponse, 0, len(views))}
	for _, v := range views {
		resp.Documents = append(resp.Documents, toDocumentResponse(v))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) requireTenant(w http.ResponseWriter, r *http.Request) (id.TenantID, bool) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		// Routes are mounted behind the tenant middleware; reaching here is a wiring bug.
		h.logger.ErrorContext(r.Context(), "tenant scope missing on identity route",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "tenant context error"))
		return id.TenantID{}, false
	}
	return tenantID, true
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "document_id"))
	if err != nil {
		// A malformed id cannot exist in any tenant.
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "document not found"))
		return id.DocumentID{}, false
	}
	return docID, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if de, ok := dErrors.As(err); !ok || !de.Code.Client() {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
