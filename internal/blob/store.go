// Package blob stores raw document payloads. Objects are write-once: a key is
// written at upload and never modified afterwards.
package blob

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	id "carepay/pkg/domain"
)

// Store is the blob storage port.
type Store interface {
	// Put writes data under key. An existing key yields sentinel.ErrConflict.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the object bytes or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// DocumentKey namespaces a document payload by tenant.
func DocumentKey(tenantID id.TenantID, docID id.DocumentID) string {
	return fmt.Sprintf("tenants/%s/identity/%s", tenantID, docID)
}

// ValidKey rejects keys that are absolute, empty, or escape the store root.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	if path.Clean(key) != key {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// DetectContentType labels a payload as one of the accepted document formats,
// falling back to application/octet-stream.
func DetectContentType(data []byte) string {
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf":
		return ct
	default:
		return "application/octet-stream"
	}
}
