package ftpclient

import (
	"crypto/tls"
	"strings"
)

// ProtocolVariant selects how the control channel is secured.
type ProtocolVariant int

const (
	// VariantTLSDefault uses explicit TLS with Go's default security settings.
	VariantTLSDefault ProtocolVariant = iota
	// VariantTLSWeak uses explicit TLS with legacy protocol versions and cipher suites allowed.
	VariantTLSWeak
	// VariantPlain uses an unencrypted control channel. Credentials travel in clear text.
	VariantPlain
)

func (v ProtocolVariant) String() string {
	switch v {
	case VariantPlain:
		return "plain"
	case VariantTLSWeak:
		return "tls-weak"
	default:
		return "tls"
	}
}

// VariantRules maps host name fragments to protocol variants. Plain wins over WeakTLS.
type VariantRules struct {
	Plain   []string
	WeakTLS []string
}

// DefaultVariantRules covers hosting providers that cannot do modern TLS.
var DefaultVariantRules = VariantRules{
	Plain:   []string{"fc2.com"},
	WeakTLS: []string{"xrea.com"},
}

// Classify returns the protocol variant for host.
func (r VariantRules) Classify(host string) ProtocolVariant {
	host = strings.ToLower(host)
	for _, p := range r.Plain {
		if p != "" && strings.Contains(host, strings.ToLower(p)) {
			return VariantPlain
		}
	}
	for _, p := range r.WeakTLS {
		if p != "" && strings.Contains(host, strings.ToLower(p)) {
			return VariantTLSWeak
		}
	}
	return VariantTLSDefault
}

// TLSConfig returns the client TLS config for a variant, or nil for VariantPlain.
func TLSConfig(v ProtocolVariant, host string) *tls.Config {
	switch v {
	case VariantPlain:
		return nil
	case VariantTLSWeak:
		suites := make([]uint16, 0)
		for _, s := range tls.CipherSuites() {
			suites = append(suites, s.ID)
		}
		for _, s := range tls.InsecureCipherSuites() {
			suites = append(suites, s.ID)
		}
		return &tls.Config{
			ServerName:   host,
			MinVersion:   tls.VersionTLS10,
			CipherSuites: suites,
		}
	default:
		return &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}
	}
}
