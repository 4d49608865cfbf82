package hosttools

import (
	"context"
	"fmt"
	"regexp"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// Regex provides regular expression helpers using Go's RE2 syntax.
type Regex struct{}

func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}

// FindAll finds all matches of pattern in text.
func (Regex) FindAll(pattern, text string) ([]string, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	return re.FindAllString(text, -1), nil
}

// Search finds the first match of pattern in text. The bool is false when
// there is no match.
func (Regex) Search(pattern, text string) (string, bool, error) {
	re, err := compile(pattern)
	if err != nil {
		return "", false, err
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", false, nil
	}
	return text[loc[0]:loc[1]], true, nil
}

// Split splits text by pattern into at most n parts; n < 0 means all.
func (Regex) Split(pattern, text string, n int) ([]string, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	return re.Split(text, n), nil
}

// Replace replaces matches of pattern in text with repl. repl may refer to
// groups as $1 or ${name}.
func (Regex) Replace(pattern, text, repl string) (string, error) {
	re, err := compile(pattern)
	if err != nil {
		return "", err
	}
	return re.ReplaceAllString(text, repl), nil
}

// Tools returns re_findall, re_search, re_split and re_replace.
func (r Regex) Tools() map[string]bridge.ToolFunc {
	patternText := func(tool string, args []any, kwargs sandbox.Kwargs) (params, string, string, error) {
		p := newParams(tool, args, kwargs)
		pattern, err := p.requireString(0, "pattern")
		if err != nil {
			return p, "", "", err
		}
		text, err := p.requireString(1, "text")
		return p, pattern, text, err
	}

	return map[string]bridge.ToolFunc{
		"re_findall": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			_, pattern, text, err := patternText("re_findall", args, kwargs)
			if err != nil {
				return nil, err
			}
			matches, err := r.FindAll(pattern, text)
			if err != nil {
				return nil, err
			}
			return stringList(matches), nil
		},
		"re_search": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			_, pattern, text, err := patternText("re_search", args, kwargs)
			if err != nil {
				return nil, err
			}
			match, ok, err := r.Search(pattern, text)
			if err != nil || !ok {
				return nil, err
			}
			return match, nil
		},
		"re_split": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			p, pattern, text, err := patternText("re_split", args, kwargs)
			if err != nil {
				return nil, err
			}
			n, err := p.optInt(2, "n", -1)
			if err != nil {
				return nil, err
			}
			parts, err := r.Split(pattern, text, n)
			if err != nil {
				return nil, err
			}
			return stringList(parts), nil
		},
		"re_replace": func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			p, pattern, text, err := patternText("re_replace", args, kwargs)
			if err != nil {
				return nil, err
			}
			repl, err := p.requireString(2, "repl")
			if err != nil {
				return nil, err
			}
			return r.Replace(pattern, text, repl)
		},
	}
}
