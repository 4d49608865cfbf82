package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/itsmostafa/replbridge/internal/session"
	"github.com/itsmostafa/replbridge/internal/ui"
)

const (
	promptMain   = ">>> "
	promptCont   = "... "
	historyFile  = ".replbridge_history"
	replHelpText = `Commands:
  :history  show the turns run so far
  :state    show saved values
  :tools    list host tools
  :clear    start over with empty state and history
  :quit     exit
A line ending in ':', '{', '(', '[', ',' or '\' opens a block; a blank line runs it.`
)

var replFlags sessionFlags

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Long: `Start an interactive session. Each entry is one turn; values saved with
save() carry over to later entries. Type :help for commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := replFlags.loadConfig(cmd)
		if err != nil {
			return err
		}
		vars, err := replFlags.variables()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		sess, err := session.Open(ctx, cfg, newLogger())
		if err != nil {
			return err
		}
		defer sess.Close()

		out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
		ui.FormatHeader(out, sess.Interp.Dialect(), sess.Interp.SessionID(), sess.Interp.Tools())

		ln := liner.NewLiner()
		defer ln.Close()
		ln.SetCtrlCAborts(true)

		histPath := ""
		if home, err := os.UserHomeDir(); err == nil {
			histPath = filepath.Join(home, historyFile)
			if f, err := os.Open(histPath); err == nil {
				_, _ = ln.ReadHistory(f)
				_ = f.Close()
			}
		}
		defer func() {
			if histPath == "" {
				return
			}
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()

		for {
			code, ok := readBlock(ln)
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			trimmed := strings.TrimSpace(code)
			if trimmed == "" {
				continue
			}

			if strings.HasPrefix(trimmed, ":") {
				if quit := replCommand(out, sess, trimmed); quit {
					return nil
				}
				continue
			}

			ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
			result, err := sess.Run(ctx, code, vars)
			if err != nil {
				ui.FormatError(errOut, err)
				continue
			}
			ui.FormatResult(out, result)
		}
	},
}

// replCommand handles a ':' command and reports whether to exit.
func replCommand(w io.Writer, sess *session.Session, command string) bool {
	switch strings.ToLower(command) {
	case ":quit", ":exit", ":q":
		return true
	case ":history":
		fmt.Fprint(w, sess.History.String())
	case ":state":
		ui.FormatState(w, sess.Interp.State())
	case ":tools":
		fmt.Fprintln(w, strings.Join(sess.Interp.Tools(), "\n"))
	case ":clear":
		sess.Interp.Start()
		sess.History.Reset()
		fmt.Fprintln(w, ui.Dim("state and history cleared"))
	case ":help":
		fmt.Fprintln(w, replHelpText)
	default:
		fmt.Fprintln(w, "unknown command. Type :help for a list.")
	}
	return false
}

// readBlock reads one entry. A single line runs at once unless it opens a
// block, in which case lines are collected until a blank one.
func readBlock(ln *liner.State) (string, bool) {
	var lines []string
	for {
		prompt := promptMain
		if len(lines) > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			lines = nil
			continue
		}
		if err != nil {
			if len(lines) > 0 {
				return strings.Join(lines, "\n"), true
			}
			return "", false
		}

		if len(lines) == 0 {
			if !opensBlock(line) {
				return line, true
			}
			lines = append(lines, line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			return strings.Join(lines, "\n"), true
		}
		lines = append(lines, line)
	}
}

func opensBlock(line string) bool {
	trimmed := strings.TrimRight(line, " \t")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case ':', '{', '(', '[', ',', '\\':
		return !strings.HasPrefix(strings.TrimSpace(trimmed), ":")
	}
	return false
}
