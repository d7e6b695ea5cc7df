package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sandevgo/formpilot/internal/core"
)

const hashSeparator = "||"

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizePart folds one hash component: NFKD decompose, drop combining
// marks, lowercase, trim and collapse internal whitespace. Both sides of a
// dedup comparison must go through this, or the hashes never line up.
func normalizePart(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// BuildContentHashInput produces the canonical pre-hash string for an entry.
func BuildContentHashInput(question, answer string, category core.Category) string {
	return normalizePart(question) + hashSeparator +
		normalizePart(answer) + hashSeparator +
		normalizePart(string(category))
}

// ContentHash is the stable dedup fingerprint of a question/answer pair.
func ContentHash(question, answer string, category core.Category) string {
	sum := sha256.Sum256([]byte(BuildContentHashInput(question, answer, category)))
	return hex.EncodeToString(sum[:])
}
