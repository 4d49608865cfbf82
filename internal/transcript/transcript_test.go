package transcript

import (
	"errors"
	"strings"
	"testing"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		languages []string
		want      string
	}{
		{
			name: "python code block",
			text: "Here's the code:\n```python\nprint('hello')\n```",
			want: "print('hello')",
		},
		{
			name: "javascript code block",
			text: "```javascript\nconsole.log('hello');\n```",
			want: "console.log('hello');",
		},
		{
			name: "plain code block",
			text: "```\nlet x = 1;\n```",
			want: "let x = 1;",
		},
		{
			name: "no code block",
			text: "Just some text",
			want: "Just some text",
		},
		{
			name:      "tagged preferred over plain",
			text:      "```\nplain code\n```\nand\n```python\npython code\n```",
			languages: Languages("python"),
			want:      "python code",
		},
		{
			name:      "other language skipped",
			text:      "```js\nlet a = 1\n```\n```py\nx = 1\n```",
			languages: Languages("python"),
			want:      "x = 1",
		},
		{
			name:      "only other languages",
			text:      "```tengo\nx := 1\n```",
			languages: Languages("javascript"),
			want:      "```tengo\nx := 1\n```",
		},
		{
			name: "multiline code",
			text: "```javascript\nlet a = 1;\nlet b = 2;\nprint(a + b);\n```",
			want: "let a = 1;\nlet b = 2;\nprint(a + b);",
		},
		{
			name: "empty code block",
			text: "```python\n```",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCode(tt.text, tt.languages...)
			if got != tt.want {
				t.Errorf("ExtractCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBlocks(t *testing.T) {
	text := "# Notes\n```python\nsave(a=1)\n```\ntext\n```\nprint(a)\n```\n```js\nignored()\n```\n"
	blocks := Blocks(text, Languages("python")...)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Lang != "python" || blocks[0].Code != "save(a=1)" {
		t.Errorf("unexpected first block: %+v", blocks[0])
	}
	if blocks[1].Lang != "" || blocks[1].Code != "print(a)" {
		t.Errorf("unexpected second block: %+v", blocks[1])
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		result bridge.TurnResult
		err    error
		want   string
	}{
		{
			name:   "text",
			result: bridge.TurnResult{Output: "3\n", HasOutput: true},
			want:   "3\n",
		},
		{
			name: "no output",
			want: "Code executed successfully (no output)",
		},
		{
			name: "final",
			result: bridge.TurnResult{
				Submitted: true,
				Final:     bridge.FinalOutput(sandbox.Bindings{{Name: "answer", Value: "42"}}),
			},
			want: `Final: {"answer":"42"}`,
		},
		{
			name: "error",
			err:  errors.New("boom"),
			want: "Error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.result, tt.err); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got, cut := Truncate("hello", 10); got != "hello" || cut {
		t.Errorf("unexpected truncation: %q %v", got, cut)
	}
	if got, cut := Truncate("hello", 0); got != "hello" || cut {
		t.Errorf("zero limit should keep everything: %q %v", got, cut)
	}
	if got, cut := Truncate("héllo wörld", 5); got != "héllo" || !cut {
		t.Errorf("expected rune truncation, got %q %v", got, cut)
	}
}

func TestHistory(t *testing.T) {
	h := &History{MaxOutputChars: 4}

	h.Add("print('abcdef')", bridge.TurnResult{Output: "abcdef", HasOutput: true}, nil)
	h.Add("boom()", bridge.TurnResult{}, &bridge.UnknownCallableError{Name: "boom"})

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Turn != 1 || entries[0].Output != "abcd" || !entries[0].Truncated || entries[0].Kind != "text" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Kind != "error" || entries[1].Error != "unknown callable" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}

	s := h.String()
	if !strings.Contains(s, "[1] >>> print('abcdef')") || !strings.Contains(s, "[Output truncated]") {
		t.Errorf("unexpected rendering:\n%s", s)
	}

	h.Reset()
	if h.Len() != 0 {
		t.Errorf("expected empty history after Reset, got %d", h.Len())
	}
}
