package executor

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/harun/toolhost/pkg/tool"
)

// timeoutMarkers are matched case-insensitively against failure text.
var timeoutMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

// connectivityMarkers identify infrastructure that is unreachable rather
// than a domain failure of the handler.
var connectivityMarkers = []string{
	"econnrefused",
	"enotfound",
	"connection refused",
	"no such host",
}

// Classify maps a handler failure to its error kind. Timeouts are checked
// first so that an i/o timeout on a dial is never treated as critical.
func Classify(err error) tool.ErrorKind {
	if err == nil {
		return ""
	}

	text := strings.ToLower(err.Error())

	if IsTimeout(err) || containsAny(text, timeoutMarkers) {
		return tool.KindTimeout
	}
	if isConnectivityError(err) || containsAny(text, connectivityMarkers) {
		return tool.KindCritical
	}
	return tool.KindHandler
}

func isConnectivityError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	return false
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
