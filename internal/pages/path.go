package pages

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

var paramRe = regexp.MustCompile(`\[([^\]]+)\]`)

// CreatePagePath turns a page component file into a route path:
//
//	src/pages/Index.vue          → /
//	src/pages/AboutUs.vue        → /about-us
//	src/pages/section/Index.vue  → /section
//	user/[id]/Profile.vue        → /user/:id/profile
//	user/profile-[id].vue        → /user/profile-:id
//
// root is stripped when file starts with it.
func CreatePagePath(file, root string) string {
	file = strings.TrimPrefix(path.Clean("/"+file), "/")
	if root != "" {
		root = strings.Trim(path.Clean("/"+root), "/")
		if rest, ok := strings.CutPrefix(file, root+"/"); ok {
			file = rest
		}
	}
	file = strings.TrimSuffix(file, path.Ext(file))

	var segments []string
	for _, seg := range strings.Split(file, "/") {
		if seg == "" || strings.EqualFold(seg, "index") {
			continue
		}
		segments = append(segments, pathSegment(seg))
	}
	return "/" + strings.Join(segments, "/")
}

// pathSegment kebab-cases the literal parts of seg and turns [param] into
// :param.
func pathSegment(seg string) string {
	var b strings.Builder
	last := 0
	for _, m := range paramRe.FindAllStringSubmatchIndex(seg, -1) {
		b.WriteString(kebab(seg[last:m[0]]))
		b.WriteString(":" + seg[m[2]:m[3]])
		last = m[1]
	}
	b.WriteString(kebab(seg[last:]))
	return b.String()
}

func kebab(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || unicode.IsSpace(r):
			b.WriteByte('-')
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1])) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
