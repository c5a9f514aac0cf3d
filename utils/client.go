package utils

import "strings"

const (
	ForwardedForHeader = "X-Forwarded-For"
	// UnknownClient is the shared identity of requests without a forwarded-for header.
	UnknownClient = "unknown"
)

// ClientID derives the best-effort client identifier from an X-Forwarded-For
// value: the left-most (originating) address. It is spoofable and not unique.
func ClientID(forwardedFor string) string {
	first, _, _ := strings.Cut(forwardedFor, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return UnknownClient
	}
	return first
}
