// Copyright 2025 The veris-sentinel Authors
// This file is part of veris-sentinel.
//
// veris-sentinel is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// veris-sentinel is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with veris-sentinel. If not, see <http://www.gnu.org/licenses/>.

package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorKind buckets transport errors for check diagnostics.
type ErrorKind string

const (
	ErrDNS      ErrorKind = "dns"
	ErrConnect  ErrorKind = "connect"
	ErrTLS      ErrorKind = "tls"
	ErrTimeout  ErrorKind = "timeout"
	ErrReset    ErrorKind = "reset"
	ErrProtocol ErrorKind = "protocol"
	ErrOther    ErrorKind = "other"
)

// ClassifyError maps a transport error to its kind. Timeouts win over
// the wrapped cause so a cancelled dial still reads as a timeout.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrOther
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrDNS
	}
	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) ||
		errors.As(err, &unknownAuthErr) || errors.As(err, &hostErr) {
		return ErrTLS
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ErrReset
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return ErrConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrConnect
	}
	// net/http wraps malformed responses in plain errors; match the
	// stable prefixes it uses.
	msg := err.Error()
	if strings.Contains(msg, "malformed HTTP") || strings.Contains(msg, "bad Content-Length") ||
		strings.Contains(msg, "server closed idle connection") {
		return ErrProtocol
	}
	return ErrOther
}

// ErrorDetails builds the standard details fields carried by results
// that hit a transport error.
func ErrorDetails(err error) map[string]any {
	return map[string]any{
		"error":      err.Error(),
		"error_kind": string(ClassifyError(err)),
	}
}
