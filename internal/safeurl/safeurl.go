package safeurl

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validator rejects fetch targets that could reach internal
// infrastructure: private, loopback, link-local, and unspecified
// addresses, plus non-HTTP schemes.
type Validator struct {
	lookupIP func(host string) ([]net.IP, error)
}

// NewValidator builds a validator using the system resolver.
func NewValidator() *Validator {
	return &Validator{lookupIP: net.LookupIP}
}

// NewValidatorWithResolver allows tests to inject address resolution.
func NewValidatorWithResolver(lookup func(host string) ([]net.IP, error)) *Validator {
	return &Validator{lookupIP: lookup}
}

// Validate returns the normalized URL to actually fetch, or an error
// describing why the target is rejected.
func (v *Validator) Validate(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Scheme = scheme

	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	parsed.Fragment = ""

	if ip := net.ParseIP(host); ip != nil {
		if err := checkIP(ip); err != nil {
			return "", err
		}
		return parsed.String(), nil
	}

	ips, err := v.lookupIP(host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("host %s resolves to no addresses", host)
	}
	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return "", fmt.Errorf("host %s: %w", host, err)
		}
	}

	return parsed.String(), nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("address %s is loopback", ip)
	case ip.IsPrivate():
		return fmt.Errorf("address %s is private", ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("address %s is link-local", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("address %s is unspecified", ip)
	}
	return nil
}
