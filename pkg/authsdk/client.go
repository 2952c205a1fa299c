package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to a ticketauth service.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient returns a client for the service at baseURL.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// LoginTOTP redeems a login ticket and TOTP code for a session.
func (c *SDKClient) LoginTOTP(ctx context.Context, ticket, code string) (*SessionResponse, error) {
	return c.LoginTOTPRequest(ctx, TOTPLoginRequest{Ticket: ticket, Code: code})
}

// LoginTOTPRequest sends req as is, including the optional account id.
func (c *SDKClient) LoginTOTPRequest(ctx context.Context, req TOTPLoginRequest) (*SessionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/mfa/totp", bytes.NewReader(body), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	var sess SessionResponse
	if err := decodeJSON(resp, &sess, http.StatusOK); err != nil {
		return nil, err
	}
	return &sess, nil
}
