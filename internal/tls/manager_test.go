package tls

import (
	"crypto/tls"
	"crypto/x509"
	"testing"

	"auth-notify-service/internal/config"

	"go.uber.org/zap"
)

func TestDevCertGeneratorReusesCertificate(t *testing.T) {
	t.Parallel()

	gen := NewDevCertGenerator(t.TempDir(), zap.NewNop())
	first, err := gen.GenerateCert([]string{"api.local", "127.0.0.1"})
	if err != nil {
		t.Fatalf("GenerateCert() error: %v", err)
	}

	leaf, err := x509.ParseCertificate(first.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate() error: %v", err)
	}
	if err := leaf.VerifyHostname("api.local"); err != nil {
		t.Errorf("VerifyHostname(api.local) error: %v", err)
	}
	if err := leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Errorf("VerifyHostname(127.0.0.1) error: %v", err)
	}

	second, err := gen.GenerateCert([]string{"api.local"})
	if err != nil {
		t.Fatalf("GenerateCert() second call error: %v", err)
	}
	if string(second.Certificate[0]) != string(first.Certificate[0]) {
		t.Error("GenerateCert() regenerated a still-valid certificate")
	}
}

func TestGetCertificateFallsBackToSelfSigned(t *testing.T) {
	t.Parallel()

	m := NewTLSManager(config.ServerConfig{
		EnableTLS:   true,
		Domain:      "localhost",
		AutoCertDir: t.TempDir(),
	}, config.EnvDevelopment, zap.NewNop())

	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if err != nil {
		t.Fatalf("GetCertificate() error: %v", err)
	}
	again, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	if err != nil {
		t.Fatalf("GetCertificate() error: %v", err)
	}
	if cert != again {
		t.Error("GetCertificate() did not cache the development certificate")
	}
	if m.ChallengeHandler() != nil {
		t.Error("ChallengeHandler() should be nil without autocert")
	}
	if got := m.GetTLSConfig().MinVersion; got != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want %x", got, tls.VersionTLS12)
	}
}

func TestGetCertificateRefusesSelfSignedInProduction(t *testing.T) {
	t.Parallel()

	m := NewTLSManager(config.ServerConfig{EnableTLS: true, AutoCertDir: t.TempDir()}, config.EnvProduction, zap.NewNop())
	if _, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "example.com"}); err == nil {
		t.Error("GetCertificate() in production without certificates should fail")
	}
}
