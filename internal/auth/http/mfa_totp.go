package http

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/aussiebroadwan/ticketauth/internal/auth/service"
	"github.com/aussiebroadwan/ticketauth/pkg/authsdk"
	"github.com/aussiebroadwan/ticketauth/pkg/httpx"
	"github.com/aussiebroadwan/ticketauth/pkg/slogx"
)

var codePattern = regexp.MustCompile(`^[0-9]{6,8}$`)

// TOTPLoginHandler redeems a login ticket and TOTP code for a session.
type TOTPLoginHandler struct {
	Service *service.TOTPLoginService
}

// ServeHTTP handles POST /v1/mfa/totp.
func (h *TOTPLoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.TOTPLoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		log.Debug("invalid TOTP login body", "err", err)
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, decodeErrorDescription(err)).WriteError(w)
		return
	}

	req.Ticket = strings.TrimSpace(req.Ticket)
	req.Code = strings.TrimSpace(req.Code)
	req.AccountID = strings.TrimSpace(req.AccountID)
	switch {
	case req.Ticket == "":
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "ticket is required.").WriteError(w)
		return
	case !codePattern.MatchString(req.Code):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "code must be 6 to 8 digits.").WriteError(w)
		return
	}

	sess, err := h.Service.Login(ctx, service.TOTPLoginRequest{
		Ticket:    req.Ticket,
		Code:      req.Code,
		AccountID: req.AccountID,
	})
	if err != nil {
		writeLoginError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{
		JWTToken:     sess.AccessToken,
		JWTExpiresIn: sess.AccessExpiresIn.Milliseconds(),
		ExpiresAt:    sess.AccessExpiresAt.UTC(),
		RefreshToken: sess.RefreshToken,
		User: authsdk.UserProfile{
			ID:          sess.User.ID,
			DisplayName: sess.User.DisplayName,
			Email:       sess.User.Email,
			AvatarURL:   sess.User.AvatarURL,
		},
	})
}

func writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTicket):
		authsdk.ErrInvalidTicket.WriteError(w)
	case errors.Is(err, service.ErrInvalidCode):
		authsdk.ErrInvalidCode.WriteError(w)
	case errors.Is(err, service.ErrMFANotEnabled):
		authsdk.ErrMFANotEnabled.WriteError(w)
	case errors.Is(err, service.ErrAccountInactive):
		authsdk.ErrAccountInactive.WriteError(w)
	case errors.Is(err, service.ErrOTPSecretMissing):
		authsdk.ErrOTPSecretMissing.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("TOTP login failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func decodeErrorDescription(err error) string {
	switch {
	case errors.Is(err, httpx.ErrUnsupportedMediaType):
		return "Content-Type must be application/json."
	case errors.Is(err, httpx.ErrEmptyBody):
		return "Request body is required."
	case errors.Is(err, httpx.ErrBodyTooLarge):
		return "Request body is too large."
	}
	return "Request body is not valid JSON."
}
