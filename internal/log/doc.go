// Package log provides slog loggers that mask data identifying a visitor.
//
// Fingerprinting handles raw device signals such as IP addresses, user
// agents, Accept-Language headers and media device labels. Those values
// must not leak into logs that may be shared or stored, while the derived
// fingerprint and run identifiers are safe and useful to log.
//
// # Masking rules
//
// The SecureHandler masks an attribute when:
//   - its key names a visitor attribute (ip, user_agent, cookie, email,
//     device_label) or a credential (dsn, password, token)
//   - its string value looks like an IPv4 or IPv6 address, an email
//     address, a bearer token or a URL carrying credentials
//
// Attributes named fingerprint, hash, run_id, device_id and probe_hash are
// never masked.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	logger.Info("visit stored",
//	    "fingerprint", record.Fingerprint,
//	    "ip", remoteAddr, // logged as ***REDACTED***
//	)
package log
