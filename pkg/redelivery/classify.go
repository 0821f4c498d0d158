package redelivery

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
)

// FailureKind classifies a failed outbound connector call. The mapping is
// deterministic and ordered: the first matching condition wins.
type FailureKind string

const (
	KindSocketTimeout  FailureKind = "SOCKET_TIMEOUT"
	KindSSLHandshake   FailureKind = "SSL_HANDSHAKE"
	KindUnknownHost    FailureKind = "UNKNOWN_HOST"
	KindUnsupportedTLS FailureKind = "UNSUPPORTED_TLS"
	KindHTTP3xx        FailureKind = "HTTP_3XX"
	KindHTTP4xx        FailureKind = "HTTP_4XX"
	KindHTTP5xx        FailureKind = "HTTP_5XX"
	KindUnknown        FailureKind = "UNKNOWN"
)

// ClassifyError maps a transport-level error to its failure kind.
func ClassifyError(err error) FailureKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindSocketTimeout
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuth) || errors.As(err, &hostnameErr) {
		return KindSSLHandshake
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindUnknownHost
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return KindUnsupportedTLS
	}

	return KindUnknown
}

// ClassifyStatus maps an HTTP response status to its failure kind. 2xx is not
// a failure and maps to "".
func ClassifyStatus(status int) FailureKind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status >= 300 && status < 400:
		return KindHTTP3xx
	case status == 429:
		// 429 means back off and try again later, like a server error.
		return KindHTTP5xx
	case status >= 400 && status < 500:
		return KindHTTP4xx
	case status >= 500 && status < 600:
		return KindHTTP5xx
	default:
		return KindUnknown
	}
}

func (k FailureKind) Retryable() bool {
	switch k {
	case KindSocketTimeout, KindSSLHandshake, KindUnknownHost, KindUnsupportedTLS, KindHTTP5xx:
		return true
	default:
		return false
	}
}

// ShouldRetry decides whether a failed delivery is requeued. A nil kind (no
// classified outcome) never retries; retryable kinds retry only while the
// attempt counter is below the cap.
func ShouldRetry(kind *FailureKind, attemptsSoFar, maxAttempts int) bool {
	if kind == nil || !kind.Retryable() {
		return false
	}
	return attemptsSoFar < maxAttempts
}
