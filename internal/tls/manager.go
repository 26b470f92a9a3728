// Package tls builds backend TLS configs for connections to the cluster
// and registers them with the MySQL driver's global TLS config registry,
// so a dbconn.Connection can reference one by name in its DSN.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/go-sql-driver/mysql"
)

// Config holds TLS configuration for backend connections to the cluster.
type Config struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	ServerName string `yaml:"server_name"`
	SkipVerify bool   `yaml:"skip_verify"`
}

// Manager owns the backend TLS config for the cluster connection.
type Manager struct {
	backendConfig *tls.Config
	registeredAs  string
}

// NewManager builds a backend TLS manager from cfg. A nil or disabled cfg
// yields a manager with no TLS config registered.
func NewManager(backendCfg *Config) (*Manager, error) {
	manager := &Manager{}

	if backendCfg != nil && backendCfg.Enabled {
		config, err := createTLSConfig(backendCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create backend TLS config: %w", err)
		}
		manager.backendConfig = config
	}

	return manager, nil
}

func createTLSConfig(cfg *Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}

// GetBackendConfig returns the TLS config for backend connections, or nil
// if TLS is not enabled.
func (m *Manager) GetBackendConfig() *tls.Config {
	return m.backendConfig
}

// IsBackendTLSEnabled returns true if backend TLS is configured.
func (m *Manager) IsBackendTLSEnabled() bool {
	return m.backendConfig != nil
}

// RegisterAs registers the backend TLS config with the MySQL driver under
// name, so a DSN can select it via tls=<name>. It is a no-op if TLS is not
// enabled. Callers pass name as dbconn.Options.TLSConfigName.
func (m *Manager) RegisterAs(name string) error {
	if m.backendConfig == nil {
		return nil
	}
	if err := mysql.RegisterTLSConfig(name, m.backendConfig); err != nil {
		return fmt.Errorf("failed to register TLS config %q: %w", name, err)
	}
	m.registeredAs = name
	return nil
}

// RegisteredAs returns the name the backend config was last registered
// under, or "" if RegisterAs has not been called successfully.
func (m *Manager) RegisteredAs() string {
	return m.registeredAs
}

// ValidateCertificates checks that the certificate, key, and CA files
// named by cfg exist, and that the certificate/key pair parses. The CA
// file's contents are not parsed here.
func ValidateCertificates(cfg *Config) error {
	if cfg.CertFile != "" {
		if _, err := os.Stat(cfg.CertFile); err != nil {
			return fmt.Errorf("certificate file not found: %w", err)
		}
	}
	if cfg.KeyFile != "" {
		if _, err := os.Stat(cfg.KeyFile); err != nil {
			return fmt.Errorf("key file not found: %w", err)
		}
	}
	if cfg.CAFile != "" {
		if _, err := os.Stat(cfg.CAFile); err != nil {
			return fmt.Errorf("CA file not found: %w", err)
		}
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		if _, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile); err != nil {
			return fmt.Errorf("failed to load certificate pair: %w", err)
		}
	}
	return nil
}
