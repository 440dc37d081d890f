package store

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// uidSpace namespaces node uids so they never collide with other SHA-1 uuids.
var uidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gridsome:node"))

// MakeUID derives a stable 32-char hex identifier from s.
func MakeUID(s string) string {
	id := uuid.NewSHA1(uidSpace, []byte(s))
	return hex.EncodeToString(id[:])
}

// contentID hashes a node input to fill in a missing id.
func contentID(in NodeInput) string {
	// json.Marshal sorts map keys, so equal inputs hash equally.
	raw, err := json.Marshal(struct {
		Title   string
		Slug    string
		Path    string
		Content string
		Fields  map[string]any
		Origin  string
	}{in.Title, in.Slug, in.Path, in.Content, in.Fields, in.Internal.Origin})
	if err != nil {
		raw = []byte(in.Title + in.Path + in.Content + in.Internal.Origin)
	}
	return MakeUID(string(raw))
}

// Slugify lowercases s, strips diacritics, splits camelCase words and joins
// the alphanumeric runs with dashes: "Hello WörldWide!" -> "hello-world-wide".
func Slugify(s string) string {
	// transformers are stateful; build one per call
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	var prev rune
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				pendingDash = true
			}
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingDash = true
		}
		prev = r
	}
	return b.String()
}
