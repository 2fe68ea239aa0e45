package resilience

import (
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"syscall"
)

// TransientError marks a failure worth retrying and carries the HTTP
// status that produced it, when one did.
type TransientError struct {
	Err        error
	StatusCode int
}

// NewTransientError wraps err as transient. statusCode may be zero for
// non-HTTP failures.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// connErrnos are the socket-level failures a loaded agency host hands out
// when it sheds connections.
var connErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
}

// retryableMessages matches transport failures that reach us as plain
// strings, mostly net/http errors whose type got lost in wrapping.
var retryableMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
}

// IsTransient reports whether err looks safe to retry: a TransientError
// anywhere in the chain, a network timeout, a dropped connection, or one
// of the known transport failure messages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	for _, errno := range connErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(retryableMessages, func(pattern string) bool {
		return strings.Contains(msg, pattern)
	})
}

// IsTransientHTTPStatus reports whether the status signals a server-side
// condition that tends to clear on its own. Everything else is permanent;
// a 404 here usually means the vintage is not published yet.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
