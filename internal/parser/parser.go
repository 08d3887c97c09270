// Package parser turns fetched register pages into typed records.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// ErrAbsent reports that a page carries no section for the requested record.
// It is a valid outcome, not a failure.
var ErrAbsent = errors.New("section absent")

// Parser turns one page into a record, or returns an error wrapping ErrAbsent
// when the page has no such section.
type Parser[R any] interface {
	Parse(page Page) (R, error)
}

// Page is a parsed document plus the context it was fetched for
type Page struct {
	Doc           *goquery.Document
	URL           string
	EudraCTNumber string
	// MemberState scopes protocol parsing to one country.
	MemberState string
}

// NewPage parses a fetched document.
func NewPage(raw *models.RawDocument, eudractNumber string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse html from %s: %w", raw.URL, err)
	}
	return Page{Doc: doc, URL: raw.URL, EudraCTNumber: eudractNumber}, nil
}

// CardParseError reports a page that is not a trial card at all
type CardParseError struct {
	URL           string
	EudraCTNumber string
}

func (e *CardParseError) Error() string {
	return fmt.Sprintf("no trial card for %s at %s", e.EudraCTNumber, e.URL)
}

// resolve makes href absolute against the page it was found on.
func resolve(base, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}
