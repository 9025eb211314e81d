package config

import "fmt"

// ValidateTLSConfig validates the TLS configuration
func (c *Config) ValidateTLSConfig() error {
	tls := c.Server.TLS

	switch tls.Mode {
	case "disabled", "":
		return nil
	case "server":
		if err := requireSource("certificate", tls.CertFile, tls.CertContent); err != nil {
			return err
		}
		if err := requireSource("key", tls.KeyFile, tls.KeyContent); err != nil {
			return err
		}
	case "mutual":
		for _, src := range []struct{ name, file, content string }{
			{"certificate", tls.CertFile, tls.CertContent},
			{"key", tls.KeyFile, tls.KeyContent},
			{"CA certificate", tls.CAFile, tls.CAContent},
		} {
			if err := requireSource(src.name, src.file, src.content); err != nil {
				return err
			}
		}
		switch tls.ClientAuthPolicy {
		case "require", "request", "verify", "":
		default:
			return fmt.Errorf("invalid clientAuthPolicy: %s (must be 'require', 'request', or 'verify')", tls.ClientAuthPolicy)
		}
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled', 'server', or 'mutual')", tls.Mode)
	}

	switch tls.MinVersion {
	case "", "1.2", "1.3":
		return nil
	default:
		return fmt.Errorf("invalid TLS minVersion: %s (must be '1.2' or '1.3')", tls.MinVersion)
	}
}

// requireSource checks that exactly one of file or inline content is set
func requireSource(name, file, content string) error {
	switch {
	case file == "" && content == "":
		return fmt.Errorf("TLS %s is required (provide either a file or content)", name)
	case file != "" && content != "":
		return fmt.Errorf("cannot specify both file and content for TLS %s", name)
	}
	return nil
}
