package jira

import (
	"fmt"
	"strings"
)

// Category is a best-effort diagnostic classification of a tracker
// failure. It exists purely for user-facing display; control flow must
// never branch on it.
type Category string

const (
	// CategoryUnauthorized covers 401 responses.
	CategoryUnauthorized Category = "unauthorized"
	// CategoryForbidden covers 403 responses.
	CategoryForbidden Category = "forbidden"
	// CategoryNotFound covers 404 responses, usually a wrong base URL.
	CategoryNotFound Category = "not_found"
	// CategoryDNS covers name resolution failures.
	CategoryDNS Category = "dns"
	// CategoryRefused covers refused TCP connections.
	CategoryRefused Category = "connection_refused"
	// CategoryTimeout covers deadline and timeout failures.
	CategoryTimeout Category = "timeout"
	// CategoryTLS covers certificate and TLS handshake failures.
	CategoryTLS Category = "tls"
	// CategoryUnknown is the fallback when nothing matches.
	CategoryUnknown Category = "unknown"
)

// Classify maps a status code and error onto a diagnostic category by
// inspecting the status and the error text. Classification is heuristic
// string matching and never fails: anything unrecognized is
// CategoryUnknown.
func Classify(statusCode int, err error) Category {
	switch statusCode {
	case 401:
		return CategoryUnauthorized
	case 403:
		return CategoryForbidden
	case 404:
		return CategoryNotFound
	}

	if err == nil {
		return CategoryUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "name or service not known"):
		return CategoryDNS
	case strings.Contains(msg, "connection refused"):
		return CategoryRefused
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(msg, "certificate") || strings.Contains(msg, "tls"):
		return CategoryTLS
	}

	return CategoryUnknown
}

// Hint returns a neutral "possible causes" line for the category. The
// classification is heuristic, so the text suggests rather than asserts.
func (c Category) Hint() string {
	switch c {
	case CategoryUnauthorized:
		return "possible causes: wrong username/email or API token/password"
	case CategoryForbidden:
		return "possible causes: the account lacks permission to browse projects via the API"
	case CategoryNotFound:
		return "possible causes: wrong base URL, or the REST API is not enabled at this address"
	case CategoryDNS:
		return "possible causes: mistyped hostname, or the server is not resolvable from here"
	case CategoryRefused:
		return "possible causes: wrong port, the service is down, or a firewall is blocking the connection"
	case CategoryTimeout:
		return "possible causes: the server is slow or unreachable; no response within the request timeout"
	case CategoryTLS:
		return "possible causes: self-signed or expired certificate, or a TLS version mismatch"
	default:
		return "possible causes: unknown error; check the server logs on the tracker side"
	}
}

// Describe renders a failure as a single diagnostic line: the raw error
// (or status) followed by the category hint.
func Describe(statusCode int, err error) string {
	category := Classify(statusCode, err)

	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	if statusCode != 0 {
		detail = fmt.Sprintf("HTTP %d: %s", statusCode, detail)
	}

	return fmt.Sprintf("%s (%s)", detail, category.Hint())
}
