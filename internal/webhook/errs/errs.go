// Package errs defines the webhook subsystem's error kinds so HTTP handlers
// can map them with an errors.As switch instead of string matching.
package errs

import "fmt"

// InvalidURL: the URL is malformed, non-HTTPS, or resolves to a blocked
// address. User-visible; surfaces at endpoint create/update and at delivery
// time.
type InvalidURL struct {
	Reason string
}

func (e *InvalidURL) Error() string { return fmt.Sprintf("invalid url: %s", e.Reason) }

// AuthFailure: cookie missing, token invalid, token blacklisted, or missing
// organization_id. The upgrade path and the HTTP auth middleware use
// authn.AuthFailure instead; nothing in this tree returns this type.
type AuthFailure struct {
	Reason string
}

func (e *AuthFailure) Error() string { return fmt.Sprintf("authentication failed: %s", e.Reason) }

// TransportFailure: DNS failure, connection error, timeout, or non-2xx
// status. The delivery engine records such failures as the delivery's
// error_message and does not return this type.
type TransportFailure struct {
	Reason string
}

func (e *TransportFailure) Error() string { return fmt.Sprintf("transport failure: %s", e.Reason) }

// Blocked: delivery prevented because the endpoint is disabled or because
// URL re-validation failed immediately before send. The delivery engine
// marks such deliveries failed directly and does not return this type.
type Blocked struct {
	Reason string
}

func (e *Blocked) Error() string { return fmt.Sprintf("blocked: %s", e.Reason) }
