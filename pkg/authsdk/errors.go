package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/ticketauth/pkg/httpx"
)

const (
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeInvalidTicket     = "invalid_ticket"
	ErrorCodeInvalidCode       = "invalid_code"
	ErrorCodeMFANotEnabled     = "mfa_not_enabled"
	ErrorCodeAccountInactive   = "account_inactive"
	ErrorCodeOTPSecretMissing  = "otp_secret_missing"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeServerError       = "server_error"
)

// APIError is an error reply from the service. The server writes the
// predefined values below; the client decodes replies back into APIError.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on StatusCode and Code so a decoded reply compares equal to the
// predefined error it was written from.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Code == t.Code
}

// WriteError writes e as the HTTP response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// NewAPIError returns an APIError.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

var (
	ErrInvalidRequest = NewAPIError(http.StatusBadRequest, ErrorCodeInvalidRequest,
		"The request is malformed.")

	ErrInvalidTicket = NewAPIError(http.StatusUnauthorized, ErrorCodeInvalidTicket,
		"Invalid or expired ticket.")

	ErrInvalidCode = NewAPIError(http.StatusUnauthorized, ErrorCodeInvalidCode,
		"Invalid two-factor code.")

	ErrMFANotEnabled = NewAPIError(http.StatusBadRequest, ErrorCodeMFANotEnabled,
		"MFA is not enabled.")

	ErrAccountInactive = NewAPIError(http.StatusBadRequest, ErrorCodeAccountInactive,
		"Account is not activated.")

	ErrOTPSecretMissing = NewAPIError(http.StatusBadRequest, ErrorCodeOTPSecretMissing,
		"OTP secret is not set.")

	ErrServerError = NewAPIError(http.StatusInternalServerError, ErrorCodeServerError,
		"Internal server error.")
)

// parseErrorResponse turns a non-2xx reply into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
