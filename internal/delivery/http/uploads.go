package http

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/litgraph/backend/internal/domain"
)

// Windows device names rejected regardless of extension.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
}

type uploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	Grant     string `json:"grant"`
	MaxBytes  int64  `json:"max_bytes"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

type grantClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// RequestUpload validates the filename and hands back a presigned PUT URL
// plus a signed grant the client returns when submitting.
func (h *Handler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, domain.E(domain.KindProviderUnavailable, "object store not configured"))
		return
	}
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Ef(domain.KindInvalidInput, err, "malformed request body"))
		return
	}
	if err := validateFilename(req.Filename); err != nil {
		writeError(w, err)
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	if contentType != "application/pdf" {
		writeError(w, domain.E(domain.KindInvalidInput, "only application/pdf uploads are accepted"))
		return
	}
	if req.SizeBytes > h.upload.MaxPDFBytes {
		writeError(w, domain.E(domain.KindTooLarge, "declared size exceeds the upload limit"))
		return
	}

	key := "uploads/" + uuid.NewString() + ".pdf"
	uploadURL, err := h.store.PresignPut(r.Context(), key, contentType, h.upload.GrantExpiry)
	if err != nil {
		writeError(w, err)
		return
	}
	grant, err := h.signGrant(key)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		UploadURL: uploadURL,
		Key:       key,
		Grant:     grant,
		MaxBytes:  h.upload.MaxPDFBytes,
		ExpiresIn: int(h.upload.GrantExpiry.Seconds()),
	})
}

type confirmRequest struct {
	Grant string `json:"grant"`
}

// ConfirmUpload verifies the grant and that the object actually arrived,
// returning the key to submit as pdf_url.
func (h *Handler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, domain.E(domain.KindProviderUnavailable, "object store not configured"))
		return
	}
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Ef(domain.KindInvalidInput, err, "malformed request body"))
		return
	}
	key, err := h.verifyGrant(req.Grant)
	if err != nil {
		writeError(w, err)
		return
	}
	exists, err := h.store.Exists(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if !exists {
		e := domain.E(domain.KindNotFound, "uploaded object not found: "+key)
		e.NextAction = "complete the upload before confirming"
		writeError(w, e)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"key":    key,
		"bucket": h.store.Bucket(),
	})
}

func (h *Handler) signGrant(key string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, grantClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.upload.GrantExpiry)),
		},
	})
	signed, err := token.SignedString([]byte(h.upload.GrantSecret))
	if err != nil {
		return "", domain.Ef(domain.KindInternal, err, "sign upload grant")
	}
	return signed, nil
}

func (h *Handler) verifyGrant(grant string) (string, error) {
	if grant == "" {
		return "", domain.E(domain.KindInvalidInput, "grant required")
	}
	var claims grantClaims
	_, err := jwt.ParseWithClaims(grant, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.upload.GrantSecret), nil
	})
	if err != nil {
		return "", domain.Ef(domain.KindInvalidInput, err, "invalid or expired grant")
	}
	if claims.Key == "" {
		return "", domain.E(domain.KindInvalidInput, "grant carries no object key")
	}
	return claims.Key, nil
}

func validateFilename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.E(domain.KindInvalidInput, "filename required")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return domain.E(domain.KindInvalidInput, "filename must not contain path separators")
	}
	ext := strings.ToLower(path.Ext(name))
	if ext != ".pdf" {
		e := domain.E(domain.KindInvalidInput, "only .pdf uploads are accepted")
		e.NextAction = "rename the file with a .pdf extension"
		return e
	}
	base := strings.ToLower(strings.TrimSuffix(name, path.Ext(name)))
	if reservedNames[base] {
		return domain.E(domain.KindInvalidInput, "reserved filename: "+name)
	}
	return nil
}
