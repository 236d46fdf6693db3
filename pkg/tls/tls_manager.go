// Package tls serves the console over HTTPS with certificates from files or
// from Let's Encrypt.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

// Settings is the [TLS] configuration section.
type Settings struct {
	Enabled        bool
	LetsEncrypt    bool
	Domain         string
	Email          string
	CacheDir       string
	CertFile       string
	KeyFile        string
	RedirectListen string // plain HTTP address for redirects and ACME challenges
}

// SettingsFromConfig reads the [TLS] section.
func SettingsFromConfig() Settings {
	return Settings{
		Enabled:        configuration.GetBool("TLS", "enable_tls", false),
		LetsEncrypt:    configuration.GetBool("TLS", "enable_letsencrypt", false),
		Domain:         strings.TrimSpace(configuration.GetString("TLS", "domain", "")),
		Email:          strings.TrimSpace(configuration.GetString("TLS", "letsencrypt_email", "")),
		CacheDir:       configuration.GetString("TLS", "cert_cache_dir", "./certs"),
		CertFile:       configuration.GetString("TLS", "cert_file", "./certs/server.crt"),
		KeyFile:        configuration.GetString("TLS", "key_file", "./certs/server.key"),
		RedirectListen: configuration.GetString("TLS", "redirect_listen", ""),
	}
}

// Validate checks the settings without touching the file system.
func (s Settings) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.LetsEncrypt {
		if s.Domain == "" {
			return errors.New("domain is required when Let's Encrypt is enabled")
		}
		if s.Email == "" {
			return errors.New("letsencrypt_email is required when Let's Encrypt is enabled")
		}
		return nil
	}
	if s.CertFile == "" || s.KeyFile == "" {
		return errors.New("cert_file and key_file are required when TLS is enabled")
	}
	return nil
}

// Manager prepares the server TLS configuration.
type Manager struct {
	settings    Settings
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
}

// NewManager validates s and loads or sets up certificates.
func NewManager(s Settings) (*Manager, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("TLS configuration: %w", err)
	}
	m := &Manager{settings: s}
	if !s.Enabled {
		return m, nil
	}
	var err error
	if s.LetsEncrypt {
		err = m.initLetsEncrypt()
	} else {
		err = m.initCertFiles()
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewManagerFromConfig is NewManager(SettingsFromConfig()).
func NewManagerFromConfig() (*Manager, error) {
	return NewManager(SettingsFromConfig())
}

func (m *Manager) initLetsEncrypt() error {
	s := m.settings
	logger.TLSInfo("using Let's Encrypt for %s", s.Domain)
	if err := os.MkdirAll(s.CacheDir, 0700); err != nil {
		return fmt.Errorf("create certificate cache: %w", err)
	}
	m.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(s.CacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      s.Email,
		HostPolicy: autocert.HostWhitelist(s.Domain, "www."+s.Domain),
	}
	m.tlsConfig = m.autocertMgr.TLSConfig()
	m.tlsConfig.MinVersion = tls.VersionTLS12
	return nil
}

func (m *Manager) initCertFiles() error {
	s := m.settings
	cert, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
	if err != nil {
		return fmt.Errorf("load certificate %s: %w", s.CertFile, err)
	}
	logger.TLSInfo("using certificate %s", s.CertFile)
	m.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return nil
}

// Enabled reports whether the console is served over HTTPS.
func (m *Manager) Enabled() bool { return m.settings.Enabled }

// TLSConfig returns nil when TLS is disabled.
func (m *Manager) TLSConfig() *tls.Config { return m.tlsConfig }

// RedirectListen is the plain HTTP address, empty when there is none. Let's
// Encrypt needs one for its challenges.
func (m *Manager) RedirectListen() string {
	if m.settings.Enabled && m.settings.LetsEncrypt && m.settings.RedirectListen == "" {
		return ":80"
	}
	return m.settings.RedirectListen
}

// RedirectHandler answers ACME challenges and sends every other request to
// the HTTPS address httpsAddr.
func (m *Manager) RedirectHandler(httpsAddr string) http.Handler {
	_, port, _ := net.SplitHostPort(httpsAddr)
	redirect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host
		if port != "" && port != "443" {
			target += ":" + port
		}
		target += r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
	if m.autocertMgr != nil {
		return m.autocertMgr.HTTPHandler(redirect)
	}
	return redirect
}

// ListenAndServe runs srv with or without TLS.
func (m *Manager) ListenAndServe(srv *http.Server) error {
	if !m.Enabled() {
		return srv.ListenAndServe()
	}
	srv.TLSConfig = m.tlsConfig
	return srv.ListenAndServeTLS("", "")
}
