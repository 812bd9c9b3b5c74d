package collyfetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/JakeFAU/crypto-news-crawler/internal/crawler"
)

// classifyError names the kind of transport failure behind err.
func classifyError(err error) crawler.ErrorKind {
	if err == nil {
		return crawler.ErrorKindNone
	}
	if errors.Is(err, context.Canceled) {
		return crawler.ErrorKindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return crawler.ErrorKindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return crawler.ErrorKindTimeout
		}
		return crawler.ErrorKindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crawler.ErrorKindTimeout
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return crawler.ErrorKindConnectionRefused
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return crawler.ErrorKindConnectionReset
	}

	var (
		recordErr  tls.RecordHeaderError
		certErr    *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	if errors.As(err, &recordErr) || errors.As(err, &certErr) ||
		errors.As(err, &unknownCA) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return crawler.ErrorKindTLS
	}
	return crawler.ErrorKindUnknown
}
