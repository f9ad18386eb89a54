package validation

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"

	"TrustRegistry/internal/domain"
	"TrustRegistry/internal/ports"
)

// Registry keeps a mapping from document types to their validators.
type Registry struct {
	validators map[domain.DocumentType]ports.DocumentValidator
}

var _ ports.DocumentValidators = (*Registry)(nil)

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: map[domain.DocumentType]ports.DocumentValidator{}}
}

// NewDefaultRegistry registers the validators for status lists and revocation lists.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(domain.DocumentStatusList, XMLValidator{})
	r.Register(domain.DocumentCertificateRevocation, CRLValidator{})
	return r
}

// Register adds or replaces the validator of a document type.
func (r *Registry) Register(docType domain.DocumentType, validator ports.DocumentValidator) {
	if r.validators == nil {
		r.validators = map[domain.DocumentType]ports.DocumentValidator{}
	}
	r.validators[docType] = validator
}

// Validate checks data with the validator of docType. Types without a
// validator are valid once downloaded.
func (r *Registry) Validate(docType domain.DocumentType, data []byte) error {
	validator, ok := r.validators[docType]
	if !ok {
		return nil
	}
	if err := validator.Validate(data); err != nil {
		return fmt.Errorf("validate %s: %w", docType, err)
	}
	return nil
}

// XMLValidator accepts well-formed XML documents.
type XMLValidator struct{}

var _ ports.DocumentValidator = XMLValidator{}

func (XMLValidator) Validate(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charset.NewReaderLabel

	elements := 0
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed xml: %w", err)
		}
		if _, ok := token.(xml.StartElement); ok {
			elements++
		}
	}
	if elements == 0 {
		return errors.New("no root element")
	}
	return nil
}

// CRLValidator accepts DER or PEM encoded certificate revocation lists.
type CRLValidator struct{}

var _ ports.DocumentValidator = CRLValidator{}

func (CRLValidator) Validate(data []byte) error {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
	}
	if _, err := x509.ParseRevocationList(der); err != nil {
		return fmt.Errorf("parse revocation list: %w", err)
	}
	return nil
}
