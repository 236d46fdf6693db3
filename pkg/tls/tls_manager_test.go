package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  bool
	}{
		{"disabled", Settings{}, false},
		{"letsencrypt without domain", Settings{Enabled: true, LetsEncrypt: true, Email: "a@b.c"}, true},
		{"letsencrypt without email", Settings{Enabled: true, LetsEncrypt: true, Domain: "basic.test"}, true},
		{"letsencrypt", Settings{Enabled: true, LetsEncrypt: true, Domain: "basic.test", Email: "a@b.c"}, false},
		{"files missing", Settings{Enabled: true}, true},
		{"files", Settings{Enabled: true, CertFile: "c", KeyFile: "k"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestManagerDisabled(t *testing.T) {
	m, err := NewManager(Settings{})
	if err != nil {
		t.Fatal(err)
	}
	if m.Enabled() || m.TLSConfig() != nil {
		t.Error("Expected a disabled manager without TLS config")
	}
	if m.RedirectListen() != "" {
		t.Errorf("Expected no redirect listener, got %q", m.RedirectListen())
	}
}

func TestManagerMissingCertificate(t *testing.T) {
	dir := t.TempDir()
	_, err := NewManager(Settings{
		Enabled:  true,
		CertFile: filepath.Join(dir, "server.crt"),
		KeyFile:  filepath.Join(dir, "server.key"),
	})
	if err == nil {
		t.Error("Expected an error for missing certificate files")
	}
}

// writeSelfSigned creates a throwaway certificate and key in dir.
func writeSelfSigned(t *testing.T, dir string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestManagerCertificateFiles(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t, t.TempDir())
	m, err := NewManager(Settings{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if cfg := m.TLSConfig(); cfg == nil || len(cfg.Certificates) != 1 {
		t.Errorf("Expected one loaded certificate, got %+v", cfg)
	}
}

func TestLetsEncryptNeedsRedirectListener(t *testing.T) {
	m, err := NewManager(Settings{
		Enabled:     true,
		LetsEncrypt: true,
		Domain:      "basic.test",
		Email:       "ops@basic.test",
		CacheDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.RedirectListen() != ":80" {
		t.Errorf("Expected :80, got %q", m.RedirectListen())
	}
	if m.TLSConfig() == nil || m.TLSConfig().GetCertificate == nil {
		t.Error("Expected an autocert TLS config")
	}
}

func TestRedirectHandler(t *testing.T) {
	tests := []struct {
		httpsAddr string
		want      string
	}{
		{":8443", "https://basic.test:8443/console?x=1"},
		{":443", "https://basic.test/console?x=1"},
	}
	m, _ := NewManager(Settings{})
	for _, tt := range tests {
		t.Run(tt.httpsAddr, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://basic.test:8080/console?x=1", nil)
			rec := httptest.NewRecorder()
			m.RedirectHandler(tt.httpsAddr).ServeHTTP(rec, req)
			if rec.Code != http.StatusMovedPermanently {
				t.Errorf("Expected status 301, got %d", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
