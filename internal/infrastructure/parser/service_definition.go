package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

var (
	pdfMagic      = []byte("%PDF-")
	crlExpr       = regexp.MustCompile(`((?:https?|ldap)://[^\s"'<>(){}\[\]]+?\.crl)\.?(?:[^a-z0-9._~/%?#=&-]|$)`)
	schemeExpr    = regexp.MustCompile(`(?:https?|ldap)://`)
	crlURLSchemes = map[string]bool{"http": true, "https": true, "ldap": true}
)

// ServiceDefinitionParser extracts revocation list urls from human-authored
// service definitions (PDF, HTML or plain text).
type ServiceDefinitionParser struct {
	logger *slog.Logger
}

var _ ports.ServiceDefinitionParser = (*ServiceDefinitionParser)(nil)

// NewServiceDefinitionParser builds a parser; a nil logger discards output.
func NewServiceDefinitionParser(logger *slog.Logger) *ServiceDefinitionParser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ServiceDefinitionParser{logger: logger}
}

// ParseServiceDefinition returns one revocation list document per distinct
// valid url found in the text, attributed to agency.
func (p *ServiceDefinitionParser) ParseServiceDefinition(data []byte, agency domain.Agency) ([]domain.Document, error) {
	text := strings.ToLower(p.extractText(data))

	var docs []domain.Document
	seen := map[string]bool{}
	for _, candidate := range crlCandidates(text) {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true

		if err := validateCRLURL(candidate); err != nil {
			p.logger.Warn("drop revocation list candidate", "agency_id", agency.ID, "error", err)
			continue
		}

		docs = append(docs, domain.Document{
			URL:              candidate,
			Type:             domain.DocumentCertificateRevocation,
			LanguageCode:     defaultLanguageCode,
			AgencyID:         agency.ID,
			StillProvided:    true,
			ReferencedByType: domain.DocumentServiceDefinition,
		})
	}
	return docs, nil
}

// crlCandidates scans the text twice: with line breaks removed, which repairs
// urls wrapped across lines, and with line breaks as spaces, which keeps urls
// listed one per line apart.
func crlCandidates(text string) []string {
	joined := strings.NewReplacer("\r", "", "\n", "").Replace(text)
	spaced := strings.NewReplacer("\r", "", "\n", " ").Replace(text)

	var out []string
	for _, match := range crlExpr.FindAllStringSubmatch(joined, -1) {
		out = append(out, splitAtSchemes(match[1])...)
	}
	for _, match := range crlExpr.FindAllStringSubmatch(spaced, -1) {
		out = append(out, match[1])
	}
	return out
}

// splitAtSchemes cuts a candidate where another url starts inside it and
// keeps the pieces that still name a revocation list.
func splitAtSchemes(candidate string) []string {
	starts := schemeExpr.FindAllStringIndex(candidate, -1)
	if len(starts) <= 1 {
		return []string{candidate}
	}
	var parts []string
	for i, loc := range starts {
		end := len(candidate)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		if part := candidate[loc[0]:end]; strings.HasSuffix(part, ".crl") {
			parts = append(parts, part)
		}
	}
	return parts
}

func (p *ServiceDefinitionParser) extractText(data []byte) string {
	if bytes.HasPrefix(data, pdfMagic) {
		text, err := extractPDFText(data)
		if err == nil {
			return text
		}
		p.logger.Debug("pdf text extraction failed, scanning raw bytes", "error", err)
		return decodeText(data)
	}

	if strings.HasPrefix(http.DetectContentType(data), "text/html") {
		if text, err := extractHTMLText(data); err == nil {
			return text
		}
	}
	return decodeText(data)
}

func extractPDFText(data []byte) (text string, err error) {
	// the pdf reader panics on some damaged cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(raw), nil
}

// extractHTMLText keeps link targets next to the visible text.
func extractHTMLText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	b.WriteString(doc.Text())
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		b.WriteString(" ")
		b.WriteString(href)
	})
	return b.String(), nil
}

func decodeText(data []byte) string {
	enc, _, _ := charset.DetermineEncoding(data, "text/plain")
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

func validateCRLURL(candidate string) error {
	u, err := url.Parse(candidate)
	if err != nil {
		return &domain.InvalidURLError{Candidate: candidate, Err: err}
	}
	if !u.IsAbs() || !crlURLSchemes[u.Scheme] {
		return &domain.InvalidURLError{Candidate: candidate, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return &domain.InvalidURLError{Candidate: candidate, Err: fmt.Errorf("missing host")}
	}
	return nil
}
