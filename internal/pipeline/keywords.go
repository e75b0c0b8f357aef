package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Subject phrases marking a tender or announcement rather than an award.
var tenderKeywords = foldAll(
	"ΠΡΟΚΗΡΥΞΗ",
	"ΔΙΑΚΗΡΥΞΗ",
	"ΠΡΟΚΗΡΥΞ",
)

// Subject phrases meaning "direct assignment", in the spellings seen upstream.
var directAssignmentKeywords = foldAll(
	"ΑΠΕΥΘΕΙΑΣ ΑΝΑΘΕΣΗ",
	"ΑΠ' ΕΥΘΕΙΑΣ ΑΝΑΘΕΣΗ",
	"ΑΠ'ΕΥΘΕΙΑΣ ΑΝΑΘΕΣΗ",
	"ΑΠΕΥΘΕΙΑΣ ΑΝΑΘΕΣ",
	"ΑΠΕΥΘΕΊΑΣ ΑΝΆΘΕΣΗ",
)

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "΄", "'", "ʼ", "'", "`", "'")

// foldText upper-cases s, strips accents, unifies apostrophes and collapses
// whitespace so subject matching ignores spelling noise.
func foldText(s string) string {
	s = strings.ToUpper(stripDiacritics(s))
	s = apostrophes.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func foldAll(in ...string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = foldText(s)
	}
	return out
}

func containsAny(folded string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(folded, k) {
			return true
		}
	}
	return false
}

// IsTenderSubject reports whether subject names a tender or announcement.
func IsTenderSubject(subject string) bool {
	return containsAny(foldText(subject), tenderKeywords)
}

// IsDirectAssignmentSubject reports whether subject describes a direct assignment.
func IsDirectAssignmentSubject(subject string) bool {
	return containsAny(foldText(subject), directAssignmentKeywords)
}
