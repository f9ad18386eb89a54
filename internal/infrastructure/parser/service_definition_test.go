package parser

import (
	"testing"

	"TrustRegistry/internal/domain"
)

func TestParseServiceDefinitionPlainText(t *testing.T) {
	t.Parallel()

	text := "Certificate policy\r\n" +
		"CRL: http://crl.certinomis.com/ca\n.crl (updated daily)\n" +
		"Mirror: HTTP://CRL.CERTINOMIS.COM/CA.crl, archive ldap://ldap.certinomis.com/cn=ca.crl \n" +
		"Broken: http://bad%zz/x.crl and http:///missing-host.crl \n" +
		"Host named after lists: https://www.crl.gouv.fr/root.crl. \n" +
		"Not a list: http://crl.certinomis.com/ca.crt\n"

	agency := domain.Agency{ID: 42, Type: domain.AgencyService}
	docs, err := NewServiceDefinitionParser(nil).ParseServiceDefinition([]byte(text), agency)
	if err != nil {
		t.Fatalf("ParseServiceDefinition returned error: %v", err)
	}

	want := []string{
		"http://crl.certinomis.com/ca.crl",
		"ldap://ldap.certinomis.com/cn=ca.crl",
		"https://www.crl.gouv.fr/root.crl",
	}
	if len(docs) != len(want) {
		t.Fatalf("expected %d documents, got %+v", len(want), docs)
	}
	for i, doc := range docs {
		if doc.URL != want[i] {
			t.Fatalf("document %d: got %s want %s", i, doc.URL, want[i])
		}
		if doc.Type != domain.DocumentCertificateRevocation || doc.LanguageCode != "en" {
			t.Fatalf("document %d: unexpected type/lang %+v", i, doc)
		}
		if doc.AgencyID != 42 || doc.ReferencedByType != domain.DocumentServiceDefinition || !doc.StillProvided {
			t.Fatalf("document %d: unexpected attribution %+v", i, doc)
		}
	}
}

func TestParseServiceDefinitionOneURLPerLine(t *testing.T) {
	t.Parallel()

	text := "Revocation lists:\n" +
		"http://a.example/x.crl\n" +
		"http://b.example/y.crl\n" +
		"CRL http://c.example/z.crl\n" +
		"see annex B\n"

	docs, err := NewServiceDefinitionParser(nil).ParseServiceDefinition([]byte(text), domain.Agency{ID: 9})
	if err != nil {
		t.Fatalf("ParseServiceDefinition returned error: %v", err)
	}

	want := []string{"http://a.example/x.crl", "http://b.example/y.crl", "http://c.example/z.crl"}
	if len(docs) != len(want) {
		t.Fatalf("expected %d documents, got %+v", len(want), docs)
	}
	for i, doc := range docs {
		if doc.URL != want[i] {
			t.Fatalf("document %d: got %s want %s", i, doc.URL, want[i])
		}
	}
}

func TestParseServiceDefinitionBrokenPDFFallsBack(t *testing.T) {
	t.Parallel()

	payload := []byte("%PDF-1.7\n1 0 obj << /Length 9 >> stream\n(http://crl.example.eu/qualified.crl) Tj\nendstream\n%%EOF")

	docs, err := NewServiceDefinitionParser(nil).ParseServiceDefinition(payload, domain.Agency{ID: 7})
	if err != nil {
		t.Fatalf("ParseServiceDefinition returned error: %v", err)
	}
	if len(docs) != 1 || docs[0].URL != "http://crl.example.eu/qualified.crl" {
		t.Fatalf("expected raw scan fallback to find the list, got %+v", docs)
	}
}

func TestParseServiceDefinitionHTML(t *testing.T) {
	t.Parallel()

	html := `<!DOCTYPE html>
<html><body>
  <p>Revocation information is published at
     <a href="http://pki.example.fr/sub-ca.crl">the sub CA list</a>.</p>
  <p>Root list: http://pki.example.fr/root.crl</p>
</body></html>`

	docs, err := NewServiceDefinitionParser(nil).ParseServiceDefinition([]byte(html), domain.Agency{ID: 3})
	if err != nil {
		t.Fatalf("ParseServiceDefinition returned error: %v", err)
	}

	found := map[string]bool{}
	for _, doc := range docs {
		found[doc.URL] = true
	}
	if len(docs) != 2 || !found["http://pki.example.fr/sub-ca.crl"] || !found["http://pki.example.fr/root.crl"] {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestParseServiceDefinitionNothingFound(t *testing.T) {
	t.Parallel()

	docs, err := NewServiceDefinitionParser(nil).ParseServiceDefinition([]byte("no revocation lists here"), domain.Agency{ID: 1})
	if err != nil {
		t.Fatalf("ParseServiceDefinition returned error: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %+v", docs)
	}
}
