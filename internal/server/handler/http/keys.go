package http

import (
	"encoding/json"
	"net/http"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// KeySource exposes the public half of the token signing key.
type KeySource interface {
	PublicKeyPEM() (string, error)
	JWKS() (jwk.Set, error)
}

// KeysHandler distributes the verification key to token consumers.
type KeysHandler struct {
	Keys KeySource
}

// PublicKey handles GET /api/v1/public-key with a PEM encoded
// SubjectPublicKeyInfo.
func (h *KeysHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	pem, err := h.Keys.PublicKeyPEM()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	_, _ = w.Write([]byte(pem))
}

// JWKS handles GET /.well-known/jwks.json.
func (h *KeysHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	set, err := h.Keys.JWKS()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	body, err := json.Marshal(set)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(body)
}
