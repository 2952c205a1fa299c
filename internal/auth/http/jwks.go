package http

import (
	"net/http"

	"github.com/aussiebroadwan/ticketauth/pkg/authsdk"
	"github.com/aussiebroadwan/ticketauth/pkg/httpx"
	"github.com/aussiebroadwan/ticketauth/pkg/jwtx"
)

// JWKSHandler publishes the public signing keys so resource servers can
// verify access tokens.
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(keys.PublicJWKS()))
	}
}
