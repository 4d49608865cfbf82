package bridge

import (
	"time"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// TurnKind says how a turn ended.
type TurnKind int

const (
	// TurnEmpty is a completed turn that printed nothing.
	TurnEmpty TurnKind = iota
	// TurnText is a completed turn with captured text.
	TurnText
	// TurnFinal is a turn ended by submit.
	TurnFinal
)

func (k TurnKind) String() string {
	switch k {
	case TurnText:
		return "text"
	case TurnFinal:
		return "final"
	default:
		return "empty"
	}
}

// TurnResult is the outcome of one Execute call.
type TurnResult struct {
	// Output is the concatenated printed text. It is only meaningful when
	// HasOutput is set; a turn may print an empty string.
	Output    string
	HasOutput bool

	// Final is set when Submitted is. Printed text is discarded then.
	Final     FinalOutput
	Submitted bool

	// ToolCalls lists every host call in order, including reserved tools.
	ToolCalls []ToolCallRecord

	Duration time.Duration
}

// Kind reports how the turn ended.
func (r TurnResult) Kind() TurnKind {
	switch {
	case r.Submitted:
		return TurnFinal
	case r.HasOutput:
		return TurnText
	default:
		return TurnEmpty
	}
}

// ToolCallRecord describes one host call made during a turn.
type ToolCallRecord struct {
	Name     string           `json:"name"`
	Args     []any            `json:"args,omitempty"`
	Kwargs   sandbox.Bindings `json:"kwargs,omitempty"`
	Result   any              `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`
}
