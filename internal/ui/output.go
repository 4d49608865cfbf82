// Package ui renders session output for the terminal.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

var (
	// titleStyle for bold headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// successStyle for success indicators
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// errorStyle for error indicators
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// errorKindStyle for the error class label
	errorKindStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	// finalBoxStyle for submitted final output
	finalBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)

	// headerBoxStyle for the session header
	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)

	// toolNameStyle for tool names
	toolNameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)
)

// FormatHeader renders the session header.
func FormatHeader(w io.Writer, dialect, sessionID string, tools []string) {
	content := fmt.Sprintf("%s %s  %s %s\n%s %s",
		dimStyle.Render("Dialect:"), titleStyle.Render(dialect),
		dimStyle.Render("Session:"), sessionID,
		dimStyle.Render("Tools:"), strings.Join(tools, ", "),
	)
	fmt.Fprintln(w, headerBoxStyle.Render(content))
}

// FormatResult writes the outcome of a turn: printed text as is, a final
// output in a box, nothing for an empty turn.
func FormatResult(w io.Writer, result bridge.TurnResult) {
	switch result.Kind() {
	case bridge.TurnText:
		fmt.Fprint(w, result.Output)
		if !strings.HasSuffix(result.Output, "\n") && result.Output != "" {
			fmt.Fprintln(w)
		}
	case bridge.TurnFinal:
		FormatFinal(w, result.Final)
	}
}

// FormatFinal renders a final output as indented JSON in a box.
func FormatFinal(w io.Writer, final bridge.FinalOutput) {
	data, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		FormatError(w, err)
		return
	}
	content := titleStyle.Render("Final Output") + "\n" + string(data)
	fmt.Fprintln(w, finalBoxStyle.Render(content))
}

// FormatError writes err with its class label.
func FormatError(w io.Writer, err error) {
	kind := bridge.Classify(err)
	fmt.Fprintf(w, "%s %s\n", errorKindStyle.Render(strings.ToUpper(kind)), errorStyle.Render(err.Error()))
}

// FormatToolCalls writes one line per host call.
func FormatToolCalls(w io.Writer, calls []bridge.ToolCallRecord) {
	for _, call := range calls {
		indicator := successStyle.Render("✓")
		status := "done"
		if call.Error != "" {
			indicator = errorStyle.Render("✗")
			status = call.Error
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			indicator, toolNameStyle.Render(call.Name), status,
			dimStyle.Render(call.Duration.Round(time.Microsecond).String()))
	}
}

// FormatState lists saved values, one per line.
func FormatState(w io.Writer, values sandbox.Bindings) {
	if len(values) == 0 {
		fmt.Fprintln(w, dimStyle.Render("(no saved state)"))
		return
	}
	for _, kv := range values {
		data, err := json.Marshal(sandbox.Normalize(kv.Value))
		if err != nil {
			data = []byte(fmt.Sprintf("%v", kv.Value))
		}
		fmt.Fprintf(w, "%s = %s\n", toolNameStyle.Render(kv.Name), data)
	}
}

// FormatSummary writes the closing line of a run.
func FormatSummary(w io.Writer, turns int, elapsed time.Duration, failed bool) {
	status := successStyle.Render("OK")
	if failed {
		status = errorStyle.Render("ERROR")
	}
	fmt.Fprintf(w, "%s %d  %s %.2fs  %s\n",
		dimStyle.Render("Turns:"), turns,
		dimStyle.Render("Duration:"), elapsed.Seconds(),
		status)
}

// Dim renders s in the muted style.
func Dim(s string) string {
	return dimStyle.Render(s)
}
