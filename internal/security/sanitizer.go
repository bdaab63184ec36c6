// Package security holds request-level access checks: WebSocket origin
// enforcement and proxy destination validation.
package security

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// Destination errors
var (
	ErrEmptyURL       = errors.New("destination cannot be empty")
	ErrURLTooLong     = errors.New("destination exceeds maximum length")
	ErrInvalidURL     = errors.New("invalid destination URL")
	ErrInvalidScheme  = errors.New("destination must use http or https")
	ErrHostNotAllowed = errors.New("destination host is not allowed")
	ErrBlockedHost    = errors.New("destination host is blocked")
	ErrPrivateIP      = errors.New("private IP addresses not allowed")
)

// Config holds sanitizer configuration.
type Config struct {
	MaxURLLength    int
	AllowPrivateIPs bool
	// AllowedHosts are host patterns accepted by MatchHost. An empty list
	// allows nothing.
	AllowedHosts []string
	// BlockedHosts are denied along with all their subdomains, even when
	// an allowed pattern matches.
	BlockedHosts []string
}

// DefaultConfig returns the default sanitizer configuration.
func DefaultConfig() Config {
	return Config{MaxURLLength: 2048}
}

// Sanitizer validates outbound proxy destinations.
type Sanitizer struct {
	config       Config
	blockedHosts map[string]bool
}

// NewSanitizer creates a destination sanitizer.
func NewSanitizer(cfg Config) *Sanitizer {
	if cfg.MaxURLLength <= 0 {
		cfg.MaxURLLength = DefaultConfig().MaxURLLength
	}
	blocked := make(map[string]bool, len(cfg.BlockedHosts))
	for _, host := range cfg.BlockedHosts {
		blocked[strings.ToLower(strings.TrimSpace(host))] = true
	}
	return &Sanitizer{config: cfg, blockedHosts: blocked}
}

// Validate reports whether rawURL is an acceptable destination.
func (s *Sanitizer) Validate(rawURL string) error {
	_, err := s.Parse(rawURL)
	return err
}

// Parse validates rawURL and returns it parsed.
func (s *Sanitizer) Parse(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	if len(rawURL) > s.config.MaxURLLength {
		return nil, ErrURLTooLong
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrInvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrInvalidScheme
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, ErrInvalidURL
	}
	if s.isBlockedHost(host) {
		return nil, ErrBlockedHost
	}
	if !s.isAllowedHost(host) {
		return nil, ErrHostNotAllowed
	}
	if !s.config.AllowPrivateIPs && isPrivateHost(host) {
		return nil, ErrPrivateIP
	}
	return u, nil
}

func (s *Sanitizer) isAllowedHost(host string) bool {
	for _, pattern := range s.config.AllowedHosts {
		if MatchHost(strings.TrimSpace(pattern), host) {
			return true
		}
	}
	return false
}

// isBlockedHost checks host and each of its parent domains.
func (s *Sanitizer) isBlockedHost(host string) bool {
	if s.blockedHosts[host] {
		return true
	}
	parts := strings.Split(host, ".")
	for i := 1; i < len(parts); i++ {
		if s.blockedHosts[strings.Join(parts[i:], ".")] {
			return true
		}
	}
	return false
}

func isPrivateHost(host string) bool {
	return host == "localhost" || isPrivateIP(host)
}

func isPrivateIP(ipStr string) bool {
	ipStr = strings.TrimSuffix(strings.TrimPrefix(ipStr, "["), "]")
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
