package integrations

import (
	"errors"
	"fmt"
)

// AuthorizationRequestError means the backend refused or failed to hand out an authorization URL.
type AuthorizationRequestError struct {
	Provider ProviderID
	Err      error
}

func (e *AuthorizationRequestError) Error() string {
	return fmt.Sprintf("authorize %s: %v", e.Provider, e.Err)
}

func (e *AuthorizationRequestError) Unwrap() error { return e.Err }

// CredentialsFetchError means no credentials could be retrieved after authorization.
type CredentialsFetchError struct {
	Provider ProviderID
	Err      error
}

func (e *CredentialsFetchError) Error() string {
	return fmt.Sprintf("fetch %s credentials: %v", e.Provider, e.Err)
}

func (e *CredentialsFetchError) Unwrap() error { return e.Err }

// ItemLoadError means the item list could not be loaded. The connection itself stands.
type ItemLoadError struct {
	Provider ProviderID
	Err      error
}

func (e *ItemLoadError) Error() string {
	return fmt.Sprintf("load %s items: %v", e.Provider, e.Err)
}

func (e *ItemLoadError) Unwrap() error { return e.Err }

// MissingPreconditionError means an action ran without a provider or credentials.
type MissingPreconditionError struct {
	Provider ProviderID
	Missing  string // "provider" or "credentials"
}

func (e *MissingPreconditionError) Error() string {
	if e.Missing == "provider" {
		return "No integration type selected."
	}
	return "No credentials available. Connect the integration first."
}

// Sentinel causes wrapped by the flow errors above.
var (
	ErrNoAuthURL     = errors.New("no authorization URL returned from server")
	ErrNoCredentials = errors.New("no credentials returned from server")
)

// detailer is implemented by backend errors that carry a server-provided message.
type detailer interface {
	UserDetail() string
}

// UserMessage picks the best message to show a user for err: the backend's
// detail, then the underlying cause, then fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var d detailer
	if errors.As(err, &d) {
		if msg := d.UserDetail(); msg != "" {
			return msg
		}
	}
	var pre *MissingPreconditionError
	if errors.As(err, &pre) {
		return pre.Error()
	}
	cause := err
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		if _, ok := cause.(flowError); !ok {
			break
		}
		cause = next
	}
	if msg := cause.Error(); msg != "" {
		return msg
	}
	return fallback
}

// flowError marks the taxonomy wrappers so UserMessage can peel them off.
type flowError interface {
	error
	flow()
}

func (*AuthorizationRequestError) flow() {}
func (*CredentialsFetchError) flow()     {}
func (*ItemLoadError) flow()             {}
