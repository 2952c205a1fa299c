/*
Package authsdk is a small client for the ticketauth service.

# Overview

A first-factor login elsewhere hands the caller a short-lived ticket. The
caller redeems it here together with a code from the account's
authenticator app:

	client := authsdk.NewSDKClient("https://auth.example.com")

	sess, err := client.LoginTOTP(ctx, ticket, "123456")
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeInvalidCode {
			// ask for the code again; the ticket is still good
		}
		return err
	}

	// sess.JWTToken is a signed access token; verify it with the JWKS.
	jwks, err := client.GetJWKS(ctx)

# Errors

Every non-2xx response is returned as an *APIError carrying the HTTP status,
a stable machine readable Code and a human readable Description. The
predefined values (ErrInvalidTicket, ErrInvalidCode, ...) are what the
server writes, so callers can compare with errors.Is.

# Health

GetLiveness and GetReadiness wrap the /livez and /readyz probes.
*/
package authsdk
