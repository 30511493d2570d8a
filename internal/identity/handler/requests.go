package handler

import (
	"encoding/base64"
	"strings"

	"carepay/internal/identity/models"
	"carepay/internal/identity/service"
	id "carepay/pkg/domain"
	dErrors "carepay/pkg/domain-errors"
)

// UploadRequest is the body of POST /identity/upload.
type UploadRequest struct {
	PatientRefID    string            `json:"patient_ref_id"`
	DocumentType    string            `json:"document_type"`
	ImageBase64     string            `json:"image_base64"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`

	ref     id.PatientRefID
	docType models.DocumentType
	payload []byte
}

// Validate checks required fields, parses enums, and decodes the payload.
func (r *UploadRequest) Validate() error {
	if strings.TrimSpace(r.PatientRefID) == "" {
		return dErrors.New(dErrors.CodeValidation, "patient_ref_id is required")
	}
	if strings.TrimSpace(r.DocumentType) == "" {
		return dErrors.New(dErrors.CodeValidation, "document_type is required")
	}
	if strings.TrimSpace(r.ImageBase64) == "" {
		return dErrors.New(dErrors.CodeValidation, "image_base64 is required")
	}

	ref, err := id.ParsePatientRefID(r.PatientRefID)
	if err != nil {
		return err
	}
	docType, err := models.ParseDocumentType(r.DocumentType)
	if err != nil {
		return err
	}
	payload, err := decodeImage(r.ImageBase64)
	if err != nil {
		return err
	}
	r.ref, r.docType, r.payload = ref, docType, payload
	return nil
}

func (r *UploadRequest) command() service.UploadCommand {
	return service.UploadCommand{
		PatientRefID:    r.ref,
		DocumentType:    r.docType,
		Payload:         r.payload,
		ExtractedFields: models.ExtractedFields(r.ExtractedFields),
	}
}

// decodeImage accepts standard base64, with or without padding, optionally wrapped in
// a data URI.
func decodeImage(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		_, after, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, dErrors.New(dErrors.CodeValidation, "image_base64 is not valid base64")
		}
		raw = after
	}
	if base64.StdEncoding.DecodedLen(len(raw)) > service.MaxPayloadBytes+3 {
		return nil, dErrors.New(dErrors.CodeValidation, "document exceeds the maximum size")
	}
	enc := base64.StdEncoding
	if !strings.HasSuffix(raw, "=") && len(raw)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	payload, err := enc.DecodeString(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "image_base64 is not valid base64")
	}
	if len(payload) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "image_base64 is required")
	}
	return payload, nil
}
