package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// DownloadError reports a document that could not be fetched.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: status code is %d instead of 200", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// MalformedDocumentError reports an XML document that cannot be decoded.
type MalformedDocumentError struct {
	URL string
	Err error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document %s: %v", e.URL, e.Err)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

// MissingAttributeError reports a required element or attribute absent from a status list.
type MissingAttributeError struct {
	Element   string
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("missing %s in %s", e.Attribute, e.Element)
}

// InvalidURLError reports a CRL candidate that is not a well-formed URL.
type InvalidURLError struct {
	Candidate string
	Err       error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %v", e.Candidate, e.Err)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// MissingIdentityError reports a persisted agency without a storage id.
type MissingIdentityError struct {
	Context string
}

func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("missing agency id: %s", e.Context)
}

// StaleStateError reports an agency that must already exist but does not.
type StaleStateError struct {
	TerritoryCode string
	AgencyID      int64
}

func (e *StaleStateError) Error() string {
	if e.TerritoryCode != "" {
		return fmt.Sprintf("no list operator with territory %s: it must be created by its parent", e.TerritoryCode)
	}
	return fmt.Sprintf("no agency with id %d", e.AgencyID)
}
