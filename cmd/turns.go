package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/itsmostafa/replbridge/internal/sandbox/dialects"
	"github.com/itsmostafa/replbridge/internal/transcript"
)

// turn is one unit of code run against the session.
type turn struct {
	source string
	code   string
}

// readTurns reads each path as one turn. Markdown files contribute one turn
// per fenced block in the dialect's languages. "-" reads stdin.
func readTurns(paths []string, stdin io.Reader, languages []string) ([]turn, error) {
	var turns []turn
	for _, path := range paths {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		if isMarkdown(path) {
			blocks := transcript.Blocks(string(data), languages...)
			if len(blocks) == 0 {
				return nil, fmt.Errorf("%s: no code blocks found", path)
			}
			for i, b := range blocks {
				turns = append(turns, turn{source: fmt.Sprintf("%s#%d", path, i+1), code: b.Code})
			}
			continue
		}
		turns = append(turns, turn{source: path, code: string(data)})
	}
	return turns, nil
}

// inferDialect picks the dialect from the first script path with a known
// extension.
func inferDialect(paths []string) (string, bool) {
	for _, path := range paths {
		if name, ok := dialects.FromExtension(path); ok {
			return name, true
		}
	}
	return "", false
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
