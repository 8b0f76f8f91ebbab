package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const signatureHeader = "X-Rail-Signature"
const invalidToken = "Invalid token"
const invalidSignature = "Invalid signature"

// verifySignature checks an HMAC-SHA256 hex signature of body against the
// shared webhook secret.
func verifySignature(body []byte, signatureHex string, secret string) bool {
	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	key := sha256.Sum256([]byte(secret))
	h := hmac.New(sha256.New, key[:])
	h.Write(body)

	return hmac.Equal(h.Sum(nil), signature)
}

// SignBody produces the hex signature the webhook endpoint expects; the fake
// rail in tests and local tooling use it.
func SignBody(body []byte, secret string) string {
	key := sha256.Sum256([]byte(secret))
	h := hmac.New(sha256.New, key[:])
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func adminAuth(token string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got == "" || !hmac.Equal([]byte(got), []byte(token)) {
				http.Error(w, invalidToken, http.StatusUnauthorized)
				log.Warn().Str("path", r.URL.Path).Msg("admin request with bad token")
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
