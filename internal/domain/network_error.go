package domain

// NetworkError is the session manager's numeric transfer error code.
// Values follow the network reply error numbering used by download backends.
type NetworkError int

const (
	NoError NetworkError = 0

	// Network layer errors
	ConnectionRefusedError  NetworkError = 1
	RemoteHostClosedError   NetworkError = 2
	HostNotFoundError       NetworkError = 3
	TimeoutError            NetworkError = 4
	OperationCanceledError  NetworkError = 5
	SslHandshakeFailedError NetworkError = 6

	// Proxy errors
	ProxyConnectionRefusedError      NetworkError = 101
	ProxyConnectionClosedError       NetworkError = 102
	ProxyNotFoundError               NetworkError = 103
	ProxyTimeoutError                NetworkError = 104
	ProxyAuthenticationRequiredError NetworkError = 105

	// Content errors
	ContentAccessDenied               NetworkError = 201
	ContentOperationNotPermittedError NetworkError = 202
	ContentNotFoundError              NetworkError = 203
	AuthenticationRequiredError       NetworkError = 204
	ContentReSendError                NetworkError = 205

	// Protocol errors
	ProtocolUnknownError          NetworkError = 301
	ProtocolInvalidOperationError NetworkError = 302

	// Unknown errors by layer
	UnknownNetworkError NetworkError = 99
	UnknownProxyError   NetworkError = 199
	UnknownContentError NetworkError = 299
	ProtocolFailure     NetworkError = 399
)

// UnknownErrorToken is returned for codes outside the known vocabulary.
const UnknownErrorToken = "???"

var networkErrorTokens = map[NetworkError]string{
	NoError:                           "NoError",
	ConnectionRefusedError:            "ConnectionRefusedError",
	RemoteHostClosedError:             "RemoteHostClosedError",
	HostNotFoundError:                 "HostNotFoundError",
	TimeoutError:                      "TimeoutError",
	OperationCanceledError:            "OperationCanceledError",
	SslHandshakeFailedError:           "SslHandshakeFailedError",
	ProxyConnectionRefusedError:       "ProxyConnectionRefusedError",
	ProxyConnectionClosedError:        "ProxyConnectionClosedError",
	ProxyNotFoundError:                "ProxyNotFoundError",
	ProxyTimeoutError:                 "ProxyTimeoutError",
	ProxyAuthenticationRequiredError:  "ProxyAuthenticationRequiredError",
	ContentAccessDenied:               "ContentAccessDenied",
	ContentOperationNotPermittedError: "ContentOperationNotPermittedError",
	ContentNotFoundError:              "ContentNotFoundError",
	AuthenticationRequiredError:       "AuthenticationRequiredError",
	ContentReSendError:                "ContentReSendError",
	ProtocolUnknownError:              "ProtocolUnknownError",
	ProtocolInvalidOperationError:     "ProtocolInvalidOperationError",
	UnknownNetworkError:               "UnknownNetworkError",
	UnknownProxyError:                 "UnknownProxyError",
	UnknownContentError:               "UnknownContentError",
	ProtocolFailure:                   "ProtocolFailure",
}

// String returns the stable token for the code, or UnknownErrorToken.
func (e NetworkError) String() string {
	if token, ok := networkErrorTokens[e]; ok {
		return token
	}
	return UnknownErrorToken
}

// IsKnown returns true if the code has its own token
func (e NetworkError) IsKnown() bool {
	_, ok := networkErrorTokens[e]
	return ok
}

// ErrorString formats a code for a notification payload.
// NoError yields the empty string so clients can test for "no error".
func ErrorString(code NetworkError) string {
	if code == NoError {
		return ""
	}
	return code.String()
}
