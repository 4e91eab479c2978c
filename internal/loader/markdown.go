package loader

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	mdFence       = regexp.MustCompile("(?m)^\\s*(```|~~~).*$")
	mdInlineCode  = regexp.MustCompile("`([^`]+)`")
	mdImage       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdHeading     = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	mdBoldStar    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	mdBoldUnder   = regexp.MustCompile(`__([^_]+)__`)
	mdItalicStar  = regexp.MustCompile(`\*([^*\s][^*]*)\*`)
	mdItalicUnder = regexp.MustCompile(`\b_([^_]+)_\b`)
	mdStrike      = regexp.MustCompile(`~~([^~]+)~~`)
	mdBlockquote  = regexp.MustCompile(`(?m)^\s*>\s?`)
	mdRule        = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	mdBullet      = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	mdNumbered    = regexp.MustCompile(`(?m)^(\s*)\d+[.)]\s+`)
	mdHTMLTag     = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	mdBlankRun    = regexp.MustCompile(`\n{3,}`)
)

func loadMarkdown(data []byte) ([]Document, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("markdown is not valid utf-8")
	}
	return []Document{{Text: stripMarkdown(string(data))}}, nil
}

// stripMarkdown reduces markdown to readable plain text. Code block
// contents are kept, only the fences go.
func stripMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	content = mdFence.ReplaceAllString(content, "")
	content = mdInlineCode.ReplaceAllString(content, "$1")
	content = mdImage.ReplaceAllString(content, "$1")
	content = mdLink.ReplaceAllString(content, "$1")
	content = mdRule.ReplaceAllString(content, "")
	content = mdHeading.ReplaceAllString(content, "")
	content = mdBoldStar.ReplaceAllString(content, "$1")
	content = mdBoldUnder.ReplaceAllString(content, "$1")
	content = mdItalicStar.ReplaceAllString(content, "$1")
	content = mdItalicUnder.ReplaceAllString(content, "$1")
	content = mdStrike.ReplaceAllString(content, "$1")
	content = mdBlockquote.ReplaceAllString(content, "")
	content = mdBullet.ReplaceAllString(content, "$1")
	content = mdNumbered.ReplaceAllString(content, "$1")
	content = mdHTMLTag.ReplaceAllString(content, "")
	content = mdBlankRun.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
