package parser

import (
	"bytes"
	"encoding/xml"
	"log/slog"
	"strings"

	"golang.org/x/net/html/charset"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

const (
	statusListMimeType  = "application/vnd.etsi.tsl+xml"
	euTerritoryCode     = "EU"
	defaultLanguageCode = "en"
)

type statusListXML struct {
	XMLName           xml.Name             `xml:"http://uri.etsi.org/02231/v2# TrustServiceStatusList"`
	SchemeInformation schemeInformationXML `xml:"http://uri.etsi.org/02231/v2# SchemeInformation"`
	Providers         []providerXML        `xml:"http://uri.etsi.org/02231/v2# TrustServiceProviderList>TrustServiceProvider"`
}

type schemeInformationXML struct {
	Territory     string       `xml:"http://uri.etsi.org/02231/v2# SchemeTerritory"`
	OperatorNames []nameXML    `xml:"http://uri.etsi.org/02231/v2# SchemeOperatorName>Name"`
	Pointers      []pointerXML `xml:"http://uri.etsi.org/02231/v2# PointersToOtherTSL>OtherTSLPointer"`
}

type pointerXML struct {
	Location         string                `xml:"http://uri.etsi.org/02231/v2# TSLLocation"`
	OtherInformation []otherInformationXML `xml:"http://uri.etsi.org/02231/v2# AdditionalInformation>OtherInformation"`
}

type otherInformationXML struct {
	Territory     string    `xml:"http://uri.etsi.org/02231/v2# SchemeTerritory"`
	MimeType      string    `xml:"http://uri.etsi.org/02231/v2/additionaltypes# MimeType"`
	OperatorNames []nameXML `xml:"http://uri.etsi.org/02231/v2# SchemeOperatorName>Name"`
}

type providerXML struct {
	Names    []nameXML    `xml:"http://uri.etsi.org/02231/v2# TSPInformation>TSPName>Name"`
	Services []serviceXML `xml:"http://uri.etsi.org/02231/v2# TSPServices>TSPService"`
}

type serviceXML struct {
	Information serviceInformationXML `xml:"http://uri.etsi.org/02231/v2# ServiceInformation"`
}

type serviceInformationXML struct {
	Names                []nameXML      `xml:"http://uri.etsi.org/02231/v2# ServiceName>Name"`
	DigitalIDs           []digitalIDXML `xml:"http://uri.etsi.org/02231/v2# ServiceDigitalIdentity>DigitalId"`
	TSPDefinitionURIs    []uriXML       `xml:"http://uri.etsi.org/02231/v2# TSPServiceDefinitionURI>URI"`
	SchemeDefinitionURIs []uriXML       `xml:"http://uri.etsi.org/02231/v2# SchemeServiceDefinitionURI>URI"`
	SupplyPoints         []string       `xml:"http://uri.etsi.org/02231/v2# ServiceSupplyPoints>ServiceSupplyPoint"`
}

type digitalIDXML struct {
	Certificate string `xml:"http://uri.etsi.org/02231/v2# X509Certificate"`
}

type nameXML struct {
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Value string `xml:",chardata"`
}

type uriXML struct {
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Value string `xml:",chardata"`
}

// StatusListParser decodes trust-service status lists.
type StatusListParser struct {
	logger *slog.Logger
}

var _ ports.StatusListParser = (*StatusListParser)(nil)

// NewStatusListParser builds a parser; a nil logger discards output.
func NewStatusListParser(logger *slog.Logger) *StatusListParser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatusListParser{logger: logger}
}

// ParseStatusList turns a status list into an unpersisted list-operator tree
// whose children are the pointed list operators and the service providers.
// Any schema violation rejects the whole document.
func (p *StatusListParser) ParseStatusList(data []byte, sourceURL string) (domain.Agency, error) {
	var list statusListXML
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charset.NewReaderLabel
	if err := decoder.Decode(&list); err != nil {
		return domain.Agency{}, &domain.MalformedDocumentError{URL: sourceURL, Err: err}
	}

	info := list.SchemeInformation
	territory := strings.TrimSpace(info.Territory)
	if territory == "" {
		return domain.Agency{}, &domain.MissingAttributeError{Element: "SchemeInformation", Attribute: "SchemeTerritory"}
	}

	names, err := toNames(info.OperatorNames, "SchemeOperatorName")
	if err != nil {
		return domain.Agency{}, err
	}
	top := domain.Agency{
		Type:          domain.AgencyListOperator,
		TerritoryCode: territory,
		Names:         names,
	}

	pointed, err := parsePointers(info.Pointers, sourceURL)
	if err != nil {
		return domain.Agency{}, err
	}

	var children []domain.Agency
	for _, agency := range pointed {
		if agency.TerritoryCode == euTerritoryCode {
			continue
		}
		children = append(children, agency)
	}

	if territory == euTerritoryCode {
		for i := len(pointed) - 1; i >= 0; i-- {
			if pointed[i].TerritoryCode == euTerritoryCode {
				top.Documents = append([]domain.Document(nil), pointed[i].Documents...)
				break
			}
		}
	}

	for _, provider := range list.Providers {
		agency, err := p.parseProvider(provider, sourceURL)
		if err != nil {
			return domain.Agency{}, err
		}
		children = append(children, agency)
	}
	top.Children = children

	p.logger.Debug("status list parsed",
		"url", sourceURL,
		"territory", territory,
		"pointers", len(pointed),
		"providers", len(list.Providers))

	return top, nil
}

func parsePointers(pointers []pointerXML, sourceURL string) ([]domain.Agency, error) {
	var agencies []domain.Agency
	for _, pointer := range pointers {
		if !pointer.describesStatusList() {
			continue
		}

		territory := ""
		var nameNodes []nameXML
		for _, other := range pointer.OtherInformation {
			if t := strings.TrimSpace(other.Territory); t != "" && territory == "" {
				territory = t
			}
			nameNodes = append(nameNodes, other.OperatorNames...)
		}
		if territory == "" {
			return nil, &domain.MissingAttributeError{Element: "OtherTSLPointer", Attribute: "SchemeTerritory"}
		}

		names, err := toNames(nameNodes, "OtherTSLPointer/SchemeOperatorName")
		if err != nil {
			return nil, err
		}

		agency := domain.Agency{
			Type:                    domain.AgencyListOperator,
			TerritoryCode:           territory,
			ReferencedByDocumentURL: sourceURL,
			StillReferenced:         domain.Bool(true),
			Names:                   names,
		}
		if location := strings.TrimSpace(pointer.Location); location != "" {
			agency.Documents = []domain.Document{{
				URL:              location,
				Type:             domain.DocumentStatusList,
				LanguageCode:     defaultLanguageCode,
				StillProvided:    true,
				ReferencedByType: domain.DocumentStatusList,
			}}
		}
		agencies = append(agencies, agency)
	}
	return agencies, nil
}

func (p pointerXML) describesStatusList() bool {
	for _, other := range p.OtherInformation {
		if strings.TrimSpace(other.MimeType) == statusListMimeType {
			return true
		}
	}
	return false
}

func (p *StatusListParser) parseProvider(provider providerXML, sourceURL string) (domain.Agency, error) {
	names, err := toNames(provider.Names, "TSPName")
	if err != nil {
		return domain.Agency{}, err
	}

	agency := domain.Agency{
		Type:                    domain.AgencyProvider,
		ReferencedByDocumentURL: sourceURL,
		StillReferenced:         domain.Bool(true),
		Names:                   names,
	}

	for _, service := range provider.Services {
		child, err := parseService(service.Information, sourceURL)
		if err != nil {
			return domain.Agency{}, err
		}
		if len(child.Names) == 0 {
			p.logger.Debug("drop service without name", "url", sourceURL)
			continue
		}
		agency.Children = append(agency.Children, child)
	}
	return agency, nil
}

func parseService(info serviceInformationXML, sourceURL string) (domain.Agency, error) {
	names, err := toNames(info.Names, "ServiceName")
	if err != nil {
		return domain.Agency{}, err
	}

	agency := domain.Agency{
		Type:                    domain.AgencyService,
		ReferencedByDocumentURL: sourceURL,
		StillReferenced:         domain.Bool(true),
		Names:                   names,
	}

	for _, id := range info.DigitalIDs {
		if certificate := strings.Join(strings.Fields(id.Certificate), ""); certificate != "" {
			agency.Certificate = certificate
			break
		}
	}

	seen := map[string]bool{}
	uris := append(append([]uriXML(nil), info.TSPDefinitionURIs...), info.SchemeDefinitionURIs...)
	for _, uri := range uris {
		location := strings.TrimSpace(uri.Value)
		if location == "" || seen[location] {
			continue
		}
		lang := strings.TrimSpace(uri.Lang)
		if lang == "" {
			return domain.Agency{}, &domain.MissingAttributeError{Element: "ServiceDefinitionURI", Attribute: "xml:lang"}
		}
		seen[location] = true
		agency.Documents = append(agency.Documents, domain.Document{
			URL:              location,
			Type:             domain.DocumentServiceDefinition,
			LanguageCode:     lang,
			StillProvided:    true,
			ReferencedByType: domain.DocumentStatusList,
		})
	}

	for _, point := range info.SupplyPoints {
		location := strings.TrimSpace(point)
		if !strings.HasSuffix(strings.ToLower(location), ".crl") || seen[location] {
			continue
		}
		seen[location] = true
		agency.Documents = append(agency.Documents, domain.Document{
			URL:              location,
			Type:             domain.DocumentCertificateRevocation,
			LanguageCode:     defaultLanguageCode,
			StillProvided:    true,
			ReferencedByType: domain.DocumentStatusList,
		})
	}

	return agency, nil
}

func toNames(nodes []nameXML, element string) ([]domain.AgencyName, error) {
	names := make([]domain.AgencyName, 0, len(nodes))
	for _, node := range nodes {
		lang := strings.TrimSpace(node.Lang)
		if lang == "" {
			return nil, &domain.MissingAttributeError{Element: element, Attribute: "xml:lang"}
		}
		names = append(names, domain.AgencyName{
			LanguageCode: lang,
			Name:         strings.TrimSpace(node.Value),
		})
	}
	return names, nil
}
