package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/vertextoedge/download-controller/internal/domain"
)

// statusError is a non-2xx HTTP response
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected http status %s", e.status)
}

// bodyError is a failure while reading a response body that had already started
type bodyError struct {
	err error
}

func (e *bodyError) Error() string {
	return fmt.Sprintf("body read interrupted: %v", e.err)
}

func (e *bodyError) Unwrap() error {
	return e.err
}

// statusCode maps an HTTP status to a network error code
func statusCode(code int) domain.NetworkError {
	switch code {
	case http.StatusUnauthorized:
		return domain.AuthenticationRequiredError
	case http.StatusForbidden:
		return domain.ContentAccessDenied
	case http.StatusNotFound, http.StatusGone:
		return domain.ContentNotFoundError
	case http.StatusMethodNotAllowed:
		return domain.ContentOperationNotPermittedError
	case http.StatusProxyAuthRequired:
		return domain.ProxyAuthenticationRequiredError
	}
	switch {
	case code >= 500:
		return domain.ProtocolUnknownError
	case code >= 400:
		return domain.UnknownContentError
	}
	return domain.ProtocolFailure
}

// classify maps a transfer error to a network error code
func classify(err error) domain.NetworkError {
	if err == nil {
		return domain.NoError
	}

	var te *domain.TransferError
	if errors.As(err, &te) {
		return te.Code
	}
	var se *statusError
	if errors.As(err, &se) {
		return statusCode(se.code)
	}

	var opErr *net.OpError
	viaProxy := errors.As(err, &opErr) && opErr.Op == "proxyconnect"
	pick := func(direct, proxied domain.NetworkError) domain.NetworkError {
		if viaProxy {
			return proxied
		}
		return direct
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return domain.OperationCanceledError
	case errors.As(err, &dnsErr) && !dnsErr.IsTimeout:
		return pick(domain.HostNotFoundError, domain.ProxyNotFoundError)
	case errors.Is(err, syscall.ECONNREFUSED):
		return pick(domain.ConnectionRefusedError, domain.ProxyConnectionRefusedError)
	case isTLSError(err):
		return domain.SslHandshakeFailedError
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return pick(domain.TimeoutError, domain.ProxyTimeoutError)
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, net.ErrClosed):
		return pick(domain.RemoteHostClosedError, domain.ProxyConnectionClosedError)
	}

	var be *bodyError
	if errors.As(err, &be) {
		return domain.RemoteHostClosedError
	}
	return domain.UnknownNetworkError
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		headerErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &headerErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
