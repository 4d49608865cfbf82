package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itsmostafa/replbridge/internal/bridge"
)

// DefaultMaxOutputChars bounds the output kept per entry.
const DefaultMaxOutputChars = 20000

// Entry is one executed turn.
type Entry struct {
	Turn      int       `json:"turn"`
	Code      string    `json:"code"`
	Output    string    `json:"output"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
	Time      time.Time `json:"time"`
}

// History is the ordered record of a session's turns.
type History struct {
	// MaxOutputChars truncates each entry's output. Zero or less keeps
	// everything.
	MaxOutputChars int

	mu      sync.Mutex
	entries []Entry
}

// NewHistory creates a History with the default output bound.
func NewHistory() *History {
	return &History{MaxOutputChars: DefaultMaxOutputChars}
}

// Add records a turn and returns the entry.
func (h *History) Add(code string, result bridge.TurnResult, err error) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	output, truncated := Truncate(Render(result, err), h.MaxOutputChars)
	entry := Entry{
		Turn:      len(h.entries) + 1,
		Code:      code,
		Output:    output,
		Kind:      result.Kind().String(),
		Truncated: truncated,
		Time:      time.Now(),
	}
	if err != nil {
		entry.Kind = "error"
		entry.Error = bridge.Classify(err)
	}
	h.entries = append(h.entries, entry)
	return entry
}

// Entries returns a copy of the recorded entries.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Entry(nil), h.entries...)
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Reset drops all entries.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// String renders the history as alternating code and output sections.
func (h *History) String() string {
	var b strings.Builder
	for _, e := range h.Entries() {
		fmt.Fprintf(&b, "[%d] >>> %s\n", e.Turn, strings.ReplaceAll(e.Code, "\n", "\n... "))
		b.WriteString(e.Output)
		if e.Truncated {
			b.WriteString("\n\n[Output truncated]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Render formats the outcome of a turn as text.
func Render(result bridge.TurnResult, err error) string {
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	switch result.Kind() {
	case bridge.TurnFinal:
		data, jerr := json.Marshal(result.Final)
		if jerr != nil {
			return fmt.Sprintf("Final: %v", result.Final.Map())
		}
		return "Final: " + string(data)
	case bridge.TurnText:
		return result.Output
	default:
		return "Code executed successfully (no output)"
	}
}

// Truncate cuts s to at most limit runes. It reports whether anything was
// cut.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]), true
}
