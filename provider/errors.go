package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a gateway operation failed
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConfig is a missing or malformed configuration value, detected before any network call
	KindConfig
	// KindTransport is a network failure, timeout or non-2xx response
	KindTransport
	// KindProtocol is a well-formed response that lacks an expected field
	KindProtocol
	// KindCrypto is an authentication or decoding failure while decrypting
	KindCrypto
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindCrypto:
		return "crypto"
	default:
		return "unknown"
	}
}

var (
	ErrUnknownProvider      = errors.New("payment provider is not available")
	ErrMissingCredentials   = errors.New("client id and client secret are required")
	ErrMissingWebhookID     = errors.New("webhook id is required")
	ErrMissingEncryptKey    = errors.New("encrypt key is required")
	ErrInvalidEncryptKey    = errors.New("encrypt key must decode to 32 bytes")
	ErrNoAccessToken        = errors.New("token response has no access_token")
	ErrNoApproveLink        = errors.New("order response has no approve link")
	ErrNoVerificationStatus = errors.New("verification response has no verification_status")
	ErrDecryptFailed        = errors.New("resource decryption failed")
	ErrUntrustedCertURL     = errors.New("certificate url is not trusted")
)

// Error is the error type returned by every gateway operation
type Error struct {
	Kind       ErrorKind
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error. The status code is lifted from err when it
// carries an HTTPStatusError.
func NewError(kind ErrorKind, providerName, op string, err error) *Error {
	e := &Error{
		Kind:     kind,
		Provider: providerName,
		Op:       op,
		Err:      err,
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		e.StatusCode = statusErr.StatusCode
	}
	return e
}

// KindOf reports the kind of the first *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatusError is returned by the HTTP client for non-2xx responses
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, body)
}
