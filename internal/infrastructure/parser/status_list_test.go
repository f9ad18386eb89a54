package parser

import (
	"errors"
	"strings"
	"testing"

	"TrustRegistry/internal/domain"
)

const euListFixture = `<?xml version="1.0" encoding="UTF-8"?>
<TrustServiceStatusList xmlns="http://uri.etsi.org/02231/v2#" xmlns:ns3="http://uri.etsi.org/02231/v2/additionaltypes#">
  <SchemeInformation>
    <SchemeOperatorName>
      <Name xml:lang="en">European Commission</Name>
      <Name xml:lang="fr">Commission européenne</Name>
    </SchemeOperatorName>
    <SchemeTerritory>EU</SchemeTerritory>
    <PointersToOtherTSL>
      <OtherTSLPointer>
        <TSLLocation>https://www.signatur.rtr.at/currenttl.xml</TSLLocation>
        <AdditionalInformation>
          <OtherInformation><SchemeTerritory>AT</SchemeTerritory></OtherInformation>
          <OtherInformation>
            <SchemeOperatorName><Name xml:lang="en">Rundfunk und Telekom Regulierungs-GmbH</Name></SchemeOperatorName>
          </OtherInformation>
          <OtherInformation><ns3:MimeType>application/vnd.etsi.tsl+xml</ns3:MimeType></OtherInformation>
        </AdditionalInformation>
      </OtherTSLPointer>
      <OtherTSLPointer>
        <TSLLocation>https://www.signatur.rtr.at/currenttl.pdf</TSLLocation>
        <AdditionalInformation>
          <OtherInformation><SchemeTerritory>AT</SchemeTerritory></OtherInformation>
          <OtherInformation><ns3:MimeType>application/pdf</ns3:MimeType></OtherInformation>
        </AdditionalInformation>
      </OtherTSLPointer>
      <OtherTSLPointer>
        <TSLLocation>https://ec.europa.eu/tools/lotl/eu-lotl.xml</TSLLocation>
        <AdditionalInformation>
          <OtherInformation><SchemeTerritory>EU</SchemeTerritory></OtherInformation>
          <OtherInformation>
            <SchemeOperatorName><Name xml:lang="en">European Commission</Name></SchemeOperatorName>
          </OtherInformation>
          <OtherInformation><ns3:MimeType>application/vnd.etsi.tsl+xml</ns3:MimeType></OtherInformation>
        </AdditionalInformation>
      </OtherTSLPointer>
    </PointersToOtherTSL>
  </SchemeInformation>
</TrustServiceStatusList>`

const frListFixture = `<?xml version="1.0" encoding="UTF-8"?>
<tsl:TrustServiceStatusList xmlns:tsl="http://uri.etsi.org/02231/v2#">
  <tsl:SchemeInformation>
    <tsl:SchemeOperatorName>
      <tsl:Name xml:lang="fr">ANSSI</tsl:Name>
    </tsl:SchemeOperatorName>
    <tsl:SchemeTerritory>FR</tsl:SchemeTerritory>
  </tsl:SchemeInformation>
  <tsl:TrustServiceProviderList>
    <tsl:TrustServiceProvider>
      <tsl:TSPInformation>
        <tsl:TSPName>
          <tsl:Name xml:lang="en">Certinomis</tsl:Name>
          <tsl:Name xml:lang="fr">Certinomis SA</tsl:Name>
        </tsl:TSPName>
      </tsl:TSPInformation>
      <tsl:TSPServices>
        <tsl:TSPService>
          <tsl:ServiceInformation>
            <tsl:ServiceName><tsl:Name xml:lang="en">Certinomis - Prime CA</tsl:Name></tsl:ServiceName>
            <tsl:ServiceDigitalIdentity>
              <tsl:DigitalId>
                <tsl:X509Certificate>
                  MIIFnDCCA4SgAwIBAgIBATAN
                  BgkqhkiG9w0BAQsFADBj
                </tsl:X509Certificate>
              </tsl:DigitalId>
            </tsl:ServiceDigitalIdentity>
            <tsl:ServiceSupplyPoints>
              <tsl:ServiceSupplyPoint>http://crl.certinomis.com/prime.crl</tsl:ServiceSupplyPoint>
              <tsl:ServiceSupplyPoint>http://ocsp.certinomis.com</tsl:ServiceSupplyPoint>
            </tsl:ServiceSupplyPoints>
            <tsl:TSPServiceDefinitionURI>
              <tsl:URI xml:lang="fr">https://www.certinomis.fr/pc.pdf</tsl:URI>
            </tsl:TSPServiceDefinitionURI>
            <tsl:SchemeServiceDefinitionURI>
              <tsl:URI xml:lang="en">https://www.ssi.gouv.fr/scheme.pdf</tsl:URI>
              <tsl:URI xml:lang="fr">https://www.certinomis.fr/pc.pdf</tsl:URI>
            </tsl:SchemeServiceDefinitionURI>
          </tsl:ServiceInformation>
        </tsl:TSPService>
        <tsl:TSPService>
          <tsl:ServiceInformation>
            <tsl:ServiceName></tsl:ServiceName>
            <tsl:TSPServiceDefinitionURI>
              <tsl:URI xml:lang="fr">https://www.certinomis.fr/orphan.pdf</tsl:URI>
            </tsl:TSPServiceDefinitionURI>
          </tsl:ServiceInformation>
        </tsl:TSPService>
      </tsl:TSPServices>
    </tsl:TrustServiceProvider>
  </tsl:TrustServiceProviderList>
</tsl:TrustServiceStatusList>`

const euListURL = "https://ec.europa.eu/tools/lotl/eu-lotl.xml"

func TestParseStatusListEUSelfPointer(t *testing.T) {
	t.Parallel()

	top, err := NewStatusListParser(nil).ParseStatusList([]byte(euListFixture), euListURL)
	if err != nil {
		t.Fatalf("ParseStatusList returned error: %v", err)
	}

	if top.Type != domain.AgencyListOperator || top.TerritoryCode != "EU" {
		t.Fatalf("unexpected top agency: %+v", top)
	}
	if len(top.Names) != 2 || top.Names[1].LanguageCode != "fr" {
		t.Fatalf("unexpected top names: %+v", top.Names)
	}

	if len(top.Children) != 1 {
		t.Fatalf("expected only the AT child, got %d children", len(top.Children))
	}
	at := top.Children[0]
	if at.TerritoryCode != "AT" {
		t.Fatalf("unexpected child territory %s", at.TerritoryCode)
	}
	if at.ReferencedByDocumentURL != euListURL {
		t.Fatalf("unexpected child reference %s", at.ReferencedByDocumentURL)
	}
	if len(at.Names) != 1 || at.Names[0].Name != "Rundfunk und Telekom Regulierungs-GmbH" {
		t.Fatalf("unexpected child names: %+v", at.Names)
	}
	if len(at.Documents) != 1 || at.Documents[0].URL != "https://www.signatur.rtr.at/currenttl.xml" {
		t.Fatalf("pdf pointer must be ignored, got documents %+v", at.Documents)
	}

	if len(top.Documents) != 1 {
		t.Fatalf("expected the EU pointer document on the top agency, got %+v", top.Documents)
	}
	doc := top.Documents[0]
	if doc.URL != euListURL || doc.Type != domain.DocumentStatusList || doc.LanguageCode != "en" {
		t.Fatalf("unexpected top document: %+v", doc)
	}
}

func TestParseStatusListProviders(t *testing.T) {
	t.Parallel()

	sourceURL := "https://www.ssi.gouv.fr/tl-fr.xml"
	top, err := NewStatusListParser(nil).ParseStatusList([]byte(frListFixture), sourceURL)
	if err != nil {
		t.Fatalf("ParseStatusList returned error: %v", err)
	}

	if top.TerritoryCode != "FR" || len(top.Documents) != 0 {
		t.Fatalf("unexpected top agency: %+v", top)
	}
	if len(top.Children) != 1 {
		t.Fatalf("expected one provider, got %d", len(top.Children))
	}

	provider := top.Children[0]
	if provider.Type != domain.AgencyProvider || provider.TerritoryCode != "" {
		t.Fatalf("unexpected provider: %+v", provider)
	}
	if provider.ReferencedByDocumentURL != sourceURL || !provider.Referenced() {
		t.Fatalf("provider must be referenced by %s: %+v", sourceURL, provider)
	}
	if len(provider.Names) != 2 {
		t.Fatalf("unexpected provider names: %+v", provider.Names)
	}

	if len(provider.Children) != 1 {
		t.Fatalf("service without name must be dropped, got %d services", len(provider.Children))
	}
	service := provider.Children[0]
	if service.Type != domain.AgencyService {
		t.Fatalf("unexpected service type %s", service.Type)
	}
	if service.Certificate != "MIIFnDCCA4SgAwIBAgIBATANBgkqhkiG9w0BAQsFADBj" {
		t.Fatalf("unexpected certificate %q", service.Certificate)
	}

	want := []domain.Document{
		{URL: "https://www.certinomis.fr/pc.pdf", Type: domain.DocumentServiceDefinition, LanguageCode: "fr"},
		{URL: "https://www.ssi.gouv.fr/scheme.pdf", Type: domain.DocumentServiceDefinition, LanguageCode: "en"},
		{URL: "http://crl.certinomis.com/prime.crl", Type: domain.DocumentCertificateRevocation, LanguageCode: "en"},
	}
	if len(service.Documents) != len(want) {
		t.Fatalf("expected %d documents, got %+v", len(want), service.Documents)
	}
	for i, doc := range service.Documents {
		if doc.URL != want[i].URL || doc.Type != want[i].Type || doc.LanguageCode != want[i].LanguageCode {
			t.Fatalf("document %d: got %+v want %+v", i, doc, want[i])
		}
		if doc.ReferencedByType != domain.DocumentStatusList || !doc.StillProvided {
			t.Fatalf("document %d: unexpected provenance %+v", i, doc)
		}
	}
}

func TestParseStatusListRejectsDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		check   func(error) bool
	}{
		{
			name:    "not xml",
			payload: "%PDF-1.4 definitely not xml",
			check: func(err error) bool {
				var target *domain.MalformedDocumentError
				return errors.As(err, &target)
			},
		},
		{
			name:    "wrong root element",
			payload: `<TrustServiceStatusList xmlns="urn:other"></TrustServiceStatusList>`,
			check: func(err error) bool {
				var target *domain.MalformedDocumentError
				return errors.As(err, &target)
			},
		},
		{
			name:    "missing territory",
			payload: strings.Replace(frListFixture, "<tsl:SchemeTerritory>FR</tsl:SchemeTerritory>", "", 1),
			check: func(err error) bool {
				var target *domain.MissingAttributeError
				return errors.As(err, &target) && target.Attribute == "SchemeTerritory"
			},
		},
		{
			name:    "pointer without territory",
			payload: strings.Replace(euListFixture, "<OtherInformation><SchemeTerritory>AT</SchemeTerritory></OtherInformation>\n          <OtherInformation>\n", "<OtherInformation>\n", 1),
			check: func(err error) bool {
				var target *domain.MissingAttributeError
				return errors.As(err, &target) && target.Element == "OtherTSLPointer"
			},
		},
		{
			name:    "definition uri without language",
			payload: strings.Replace(frListFixture, `<tsl:URI xml:lang="en">`, `<tsl:URI>`, 1),
			check: func(err error) bool {
				var target *domain.MissingAttributeError
				return errors.As(err, &target) && target.Attribute == "xml:lang"
			},
		},
		{
			name:    "name without language",
			payload: strings.Replace(frListFixture, `<tsl:Name xml:lang="en">Certinomis</tsl:Name>`, `<tsl:Name>Certinomis</tsl:Name>`, 1),
			check: func(err error) bool {
				var target *domain.MissingAttributeError
				return errors.As(err, &target) && target.Element == "TSPName"
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewStatusListParser(nil).ParseStatusList([]byte(tt.payload), "https://example.org/tl.xml")
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !tt.check(err) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
		})
	}
}

func TestParseStatusListLatin1(t *testing.T) {
	t.Parallel()

	payload := strings.Replace(frListFixture, `encoding="UTF-8"`, `encoding="ISO-8859-1"`, 1)
	payload = strings.Replace(payload, "Certinomis SA", "Soci\xe9t\xe9 Certinomis", 1)

	top, err := NewStatusListParser(nil).ParseStatusList([]byte(payload), "https://www.ssi.gouv.fr/tl-fr.xml")
	if err != nil {
		t.Fatalf("ParseStatusList returned error: %v", err)
	}
	if got := top.Children[0].Names[1].Name; got != "Société Certinomis" {
		t.Fatalf("unexpected decoded name %q", got)
	}
}
