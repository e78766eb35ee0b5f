// Package corpus assembles the searchable document set used by the matcher.
package corpus

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTextChars caps the searchable text of a document and of a query.
	MaxTextChars = 5000
	// MaxNameChars caps the display name of a document.
	MaxNameChars = 80
)

// Document is one matchable case.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Corpus is an ordered set of documents. Order is the tie-break order for
// equal similarity scores.
type Corpus []Document

// Texts returns the document texts in corpus order.
func (c Corpus) Texts() []string {
	out := make([]string, len(c))
	for i, d := range c {
		out[i] = d.Text
	}
	return out
}

// Source supplies documents from persistence.
type Source interface {
	ReferenceDocuments(ctx context.Context) ([]Document, error)
	UserScenarioDocuments(ctx context.Context) ([]Document, error)
}

// NormalizeText trims s, collapses whitespace runs and truncates at
// MaxTextChars runes. Index texts and query texts must both pass through it.
func NormalizeText(s string) string {
	return truncate(collapse(s), MaxTextChars)
}

// NormalizeName is NormalizeText with the display-name limit.
func NormalizeName(s string) string {
	return truncate(collapse(s), MaxNameChars)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
