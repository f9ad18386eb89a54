package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"TrustRegistry/internal/domain"
)

func testRevocationList(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	issuer, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	crl, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:     big.NewInt(7),
		ThisUpdate: time.Now().Add(-time.Minute),
		NextUpdate: time.Now().Add(24 * time.Hour),
	}, issuer, key)
	if err != nil {
		t.Fatalf("create revocation list: %v", err)
	}
	return crl
}

func TestRegistryValidatesRevocationLists(t *testing.T) {
	t.Parallel()

	der := testRevocationList(t)
	pemEncoded := pem.EncodeToMemory(&pem.Block{Type: "X509 CRL", Bytes: der})
	registry := NewDefaultRegistry()

	if err := registry.Validate(domain.DocumentCertificateRevocation, der); err != nil {
		t.Fatalf("DER revocation list rejected: %v", err)
	}
	if err := registry.Validate(domain.DocumentCertificateRevocation, pemEncoded); err != nil {
		t.Fatalf("PEM revocation list rejected: %v", err)
	}
	if err := registry.Validate(domain.DocumentCertificateRevocation, []byte("<html>moved</html>")); err == nil {
		t.Fatalf("expected an html page to be rejected as revocation list")
	}
}

func TestRegistryValidatesStatusLists(t *testing.T) {
	t.Parallel()

	registry := NewDefaultRegistry()
	cases := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "well formed", input: `<?xml version="1.0"?><TrustServiceStatusList xmlns="http://uri.etsi.org/02231/v2#"><SchemeInformation/></TrustServiceStatusList>`, valid: true},
		{name: "latin1 declared", input: "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><list>caf\xe9</list>", valid: true},
		{name: "truncated", input: `<TrustServiceStatusList><SchemeInformation>`, valid: false},
		{name: "empty", input: ``, valid: false},
		{name: "plain text", input: `service unavailable`, valid: false},
	}

	for _, tc := range cases {
		err := registry.Validate(domain.DocumentStatusList, []byte(tc.input))
		if tc.valid && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}
}

func TestRegistryAcceptsUnregisteredTypes(t *testing.T) {
	t.Parallel()

	if err := NewDefaultRegistry().Validate(domain.DocumentServiceDefinition, []byte("%PDF-1.4 anything")); err != nil {
		t.Fatalf("service definitions are valid once downloaded, got %v", err)
	}
}
