package library

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEndOfDocument is returned when a page index is past the last page.
var ErrEndOfDocument = errors.New("end of document")

// Document is an ingested upload split into ordered page units.
type Document struct {
	ID    string
	Title string
	Pages []string
}

// PageSource yields the text of one page at a time.
type PageSource interface {
	Page(index int) (string, error)
	TotalPages() int
}

// Page returns the text of page index or ErrEndOfDocument.
func (d *Document) Page(index int) (string, error) {
	if index < 0 || index >= len(d.Pages) {
		return "", ErrEndOfDocument
	}
	return d.Pages[index], nil
}

func (d *Document) TotalPages() int {
	return len(d.Pages)
}

var (
	reDisallowed  = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?;:()\-]`)
	reWhitespace  = regexp.MustCompile(`\s+`)
	reSentenceEnd = regexp.MustCompile(`[.!?]+`)
)

// CleanText strips disallowed characters and normalizes whitespace.
func CleanText(text string) string {
	text = reDisallowed.ReplaceAllString(text, "")
	text = reWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitPages packs sentences into pages of roughly wordsPerPage words. A
// sentence never straddles two pages; fragments under three words are dropped.
func SplitPages(text string, wordsPerPage int) []string {
	if wordsPerPage <= 0 {
		wordsPerPage = 50
	}
	sentences := splitSentences(text)

	var pages []string
	var page []string
	wordCount := 0

	for _, sentence := range sentences {
		words := len(strings.Fields(sentence))
		if wordCount+words > wordsPerPage && len(page) > 0 {
			pages = append(pages, strings.Join(page, " "))
			page = []string{sentence}
			wordCount = words
			continue
		}
		page = append(page, sentence)
		wordCount += words
	}
	if len(page) > 0 {
		pages = append(pages, strings.Join(page, " "))
	}
	return pages
}

func splitSentences(text string) []string {
	parts := reSentenceEnd.Split(text, -1)
	var sentences []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || len(strings.Fields(part)) < 3 {
			continue
		}
		sentences = append(sentences, part)
	}
	return sentences
}
