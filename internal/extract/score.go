package extract

import "strings"

// Candidate holds the fields relevance scoring looks at.
type Candidate struct {
	Title    string
	Author   string
	ISBNs    []string
	AltID    string // secondary identifier (edition id, md5, OLID...)
}

// Relevance weights. The additive point system ranks free-text matches; it
// never filters them.
const (
	scoreISBN       = 10
	scoreAltID      = 8
	scoreTitle      = 5
	scoreAuthor     = 3
	scoreTitleWord  = 2
	scoreAuthorWord = 1
)

// Score returns the additive relevance of a candidate against a free-text
// query. Higher is better; zero means nothing matched.
func Score(query string, c Candidate) int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}

	score := 0

	for _, isbn := range c.ISBNs {
		if isbn != "" && strings.Contains(q, strings.ToLower(isbn)) {
			score += scoreISBN
			break
		}
	}

	if c.AltID != "" && strings.Contains(q, strings.ToLower(c.AltID)) {
		score += scoreAltID
	}

	title := strings.ToLower(c.Title)
	author := strings.ToLower(c.Author)

	if title != "" && strings.Contains(title, q) {
		score += scoreTitle
	}
	if author != "" && strings.Contains(author, q) {
		score += scoreAuthor
	}

	for _, word := range strings.Fields(q) {
		if title != "" && strings.Contains(title, word) {
			score += scoreTitleWord
		}
		if author != "" && strings.Contains(author, word) {
			score += scoreAuthorWord
		}
	}

	return score
}
