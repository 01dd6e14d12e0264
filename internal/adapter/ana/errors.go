package ana

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// AuthKind classifies authentication failures.
type AuthKind string

const (
	AuthInvalidCredentials AuthKind = "CREDENCIAIS_INVALIDAS"
	AuthTimeout            AuthKind = "TIMEOUT"
	AuthMissingToken       AuthKind = "TOKEN_AUSENTE"
	AuthConfig             AuthKind = "CONFIGURACAO"
	AuthFailed             AuthKind = "FALHA_AUTENTICACAO"
)

// AuthError is a structured authentication failure. Status carries an
// HTTP-like code suitable for the API response.
type AuthError struct {
	Kind    AuthKind
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrMissingCredentials is wrapped by the CONFIGURACAO AuthError.
var ErrMissingCredentials = errors.New("ANA_IDENTIFICADOR and ANA_SENHA must be set")

// APIError is a failed history call.
type APIError struct {
	Status     int // 0 when no response was received
	NoResponse bool
	Timeout    bool
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Timeout:
		return "hydrology API timeout: " + e.Message
	case e.NoResponse:
		return "hydrology API unreachable: " + e.Message
	default:
		return fmt.Sprintf("hydrology API returned %d: %s", e.Status, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// DecodeError reports a token whose claims could not be read.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string { return "decode token: " + e.Reason }

func (e *DecodeError) Unwrap() error { return e.Err }

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyAuthStatus maps an auth endpoint status to an AuthError.
func classifyAuthStatus(status int, body string) *AuthError {
	if status == http.StatusUnauthorized {
		return &AuthError{Kind: AuthInvalidCredentials, Status: status, Message: "credentials rejected", Detail: body}
	}
	return &AuthError{Kind: AuthFailed, Status: status, Message: "unexpected auth response", Detail: body}
}

// classifyAuthTransport maps a transport failure to an AuthError.
func classifyAuthTransport(err error) *AuthError {
	// A request with no response, timed out or refused, counts as a timeout.
	return &AuthError{Kind: AuthTimeout, Status: http.StatusGatewayTimeout, Message: "no response from auth endpoint", Detail: err.Error(), Err: err}
}

// Category names an error for log de-duplication: the upstream status code,
// "no-response", or the configuration message.
func Category(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		switch authErr.Kind {
		case AuthConfig:
			return "config:" + authErr.Message
		case AuthTimeout:
			return "no-response"
		}
		return fmt.Sprintf("status:%d", authErr.Status)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.NoResponse {
			return "no-response"
		}
		return fmt.Sprintf("status:%d", apiErr.Status)
	}
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return "decode"
	}
	return "other"
}
