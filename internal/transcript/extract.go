// Package transcript keeps the record of a multi-turn session and pulls
// code out of markdown.
package transcript

import (
	"regexp"
	"strings"
)

// fence matches one fenced block. The tag is the word after the opening
// backticks.
var fence = regexp.MustCompile("(?s)```([\\w+-]*)[ \\t]*\\n(.*?)```")

// Block is one fenced code block.
type Block struct {
	Lang string
	Code string
}

// Blocks returns the fenced code blocks of text in order. When languages
// are given, blocks tagged with one of them are kept along with untagged
// blocks; blocks tagged with another language are skipped.
func Blocks(text string, languages ...string) []Block {
	var out []Block
	for _, m := range fence.FindAllStringSubmatch(text, -1) {
		lang := strings.ToLower(m[1])
		if lang != "" && len(languages) > 0 && !matches(lang, languages) {
			continue
		}
		out = append(out, Block{Lang: lang, Code: strings.TrimSpace(m[2])})
	}
	return out
}

// ExtractCode returns the code of the first block tagged with one of
// languages, else the first untagged block, else text unchanged.
func ExtractCode(text string, languages ...string) string {
	blocks := Blocks(text, languages...)
	for _, b := range blocks {
		if b.Lang != "" {
			return b.Code
		}
	}
	if len(blocks) > 0 {
		return blocks[0].Code
	}
	return text
}

// Languages returns the fence tags used for a dialect.
func Languages(dialect string) []string {
	switch strings.ToLower(dialect) {
	case "python":
		return []string{"python", "py", "starlark"}
	case "javascript":
		return []string{"javascript", "js"}
	case "tengo":
		return []string{"tengo"}
	}
	return nil
}

func matches(lang string, languages []string) bool {
	for _, l := range languages {
		if strings.EqualFold(lang, l) {
			return true
		}
	}
	return false
}
