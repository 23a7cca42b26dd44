package httpcore

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"httpcore/internal/model"
)

// Config mirrors spec.md §3's option table; it is copied (never aliased)
// into the Client at construction and at SetConfig, matching the
// teacher's Options/ConnOptions/TimeoutOptions grouping in
// application/http/actor/client/options.go collapsed into one struct.
type Config = model.Config

// DefaultConfig returns the documented defaults of spec.md §3's table.
func DefaultConfig() Config { return model.Default() }

// buildTLSConfig constructs the client's shared, read-only-after-construction
// TLS context: default OS trust roots, plus any configured CA file/path
// added to that set, per spec.md §6 ("Default trust paths loaded from the
// OS; ca_cert_file and ca_cert_path add to that set"). verify_ssl=false
// disables peer verification entirely.
func buildTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.TLSConfig != nil {
		return cfg.TLSConfig.Clone(), nil
	}

	tlsCfg := &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}

	if cfg.CACertFile == "" && cfg.CACertPath == "" {
		return tlsCfg, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading ca_cert_file %q", cfg.CACertFile)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates parsed from ca_cert_file %q", cfg.CACertFile)
		}
	}

	if cfg.CACertPath != "" {
		entries, err := os.ReadDir(cfg.CACertPath)
		if err != nil {
			return nil, errors.Wrapf(err, "reading ca_cert_path %q", cfg.CACertPath)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			pem, err := os.ReadFile(filepath.Join(cfg.CACertPath, entry.Name()))
			if err != nil {
				return nil, errors.Wrapf(err, "reading ca cert %q", entry.Name())
			}
			pool.AppendCertsFromPEM(pem)
		}
	}

	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}
