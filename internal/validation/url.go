// Package validation checks values that leave the process: URLs handed to
// the platform browser opener and origins of live-reload connections.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// shellMeta are characters a browser opener could pass on to a shell.
const shellMeta = ";&|`$()<>\"'\\\n\r "

// ValidateURL checks a URL before it is handed to xdg-open, open or
// rundll32. Only absolute http(s) URLs without shell metacharacters pass.
func ValidateURL(rawURL string) error {
	if i := strings.IndexAny(rawURL, shellMeta); i >= 0 {
		return fmt.Errorf("URL contains dangerous character %q", rawURL[i])
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// OriginHost returns the host of an http(s) Origin header if it is one of
// allowed, compared case-insensitively.
func OriginHost(origin string, allowed ...string) (string, error) {
	if origin == "" {
		return "", fmt.Errorf("missing origin")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("origin scheme %q not allowed", u.Scheme)
	}
	for _, a := range allowed {
		if a != "" && strings.EqualFold(u.Host, a) {
			return u.Host, nil
		}
	}
	return "", fmt.Errorf("origin %s not allowed", u.Host)
}
