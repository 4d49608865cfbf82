package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/session"
	"github.com/itsmostafa/replbridge/internal/ui"
)

var runFlags sessionFlags
var runJSON bool
var runShowCalls bool
var runKeepGoing bool

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Run scripts as the turns of one session",
	Long: `Run each file as one turn of a single session, in order. Values saved in one
turn are visible to the next. Markdown files contribute one turn per fenced code
block. Use "-" or no files to read a script from stdin.

The dialect comes from --dialect, else the first file extension (.py, .star,
.js, .tengo), else the config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := runFlags.loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("dialect") {
			if name, ok := inferDialect(args); ok {
				cfg.Dialect = name
			}
		}
		vars, err := runFlags.variables()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			args = []string{"-"}
		}

		ctx := cmd.Context()
		sess, err := session.Open(ctx, cfg, newLogger())
		if err != nil {
			return err
		}
		defer sess.Close()

		turns, err := readTurns(args, cmd.InOrStdin(), sess.Languages())
		if err != nil {
			return err
		}

		out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
		start := time.Now()
		failed := 0
		for _, t := range turns {
			result, err := sess.Run(ctx, t.code, vars)
			if runShowCalls {
				ui.FormatToolCalls(errOut, result.ToolCalls)
			}
			if runJSON {
				if jerr := writeReport(out, t.source, result, err); jerr != nil {
					return jerr
				}
			} else if err == nil {
				ui.FormatResult(out, result)
			}
			if err != nil {
				failed++
				if !runJSON {
					fmt.Fprintf(errOut, "%s ", ui.Dim(t.source+":"))
					ui.FormatError(errOut, err)
				}
				if !runKeepGoing {
					break
				}
			}
		}

		if verbose {
			ui.FormatSummary(errOut, sess.History.Len(), time.Since(start), failed > 0)
		}
		if failed > 0 {
			return &exitError{code: 1}
		}
		return nil
	},
}

// turnReport is the --json form of one turn.
type turnReport struct {
	Source    string                  `json:"source"`
	Kind      string                  `json:"kind"`
	Output    string                  `json:"output,omitempty"`
	Final     bridge.FinalOutput      `json:"final,omitempty"`
	Error     string                  `json:"error,omitempty"`
	ErrorKind string                  `json:"error_kind,omitempty"`
	ToolCalls []bridge.ToolCallRecord `json:"tool_calls,omitempty"`
}

func writeReport(w io.Writer, source string, result bridge.TurnResult, err error) error {
	report := turnReport{
		Source:    source,
		Kind:      result.Kind().String(),
		Output:    result.Output,
		Final:     result.Final,
		ToolCalls: result.ToolCalls,
	}
	if err != nil {
		report.Kind = "error"
		report.Error = err.Error()
		report.ErrorKind = bridge.Classify(err)
	}
	data, jerr := json.Marshal(report)
	if jerr != nil {
		return fmt.Errorf("encoding report: %w", jerr)
	}
	_, jerr = fmt.Fprintln(w, string(data))
	return jerr
}

func init() {
	runFlags.register(runCmd)
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print one JSON object per turn")
	runCmd.Flags().BoolVar(&runShowCalls, "show-calls", false, "Print host tool calls to stderr")
	runCmd.Flags().BoolVar(&runKeepGoing, "keep-going", false, "Run the remaining turns after a failed turn")

	rootCmd.AddCommand(runCmd)
}
