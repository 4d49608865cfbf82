package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/replbridge/internal/session"
	"github.com/itsmostafa/replbridge/internal/ui"
)

var checkFlags sessionFlags

var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Validate scripts without running them",
	Long: `Validate each turn statically against the names it would see: input
variables, saved state, host tools and the reserved save, clear and submit.
No code runs and no tool is called. Only the python dialect supports checks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := checkFlags.loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("dialect") {
			if name, ok := inferDialect(args); ok {
				cfg.Dialect = name
			}
		}
		vars, err := checkFlags.variables()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			args = []string{"-"}
		}

		sess, err := session.Open(cmd.Context(), cfg, newLogger())
		if err != nil {
			return err
		}
		defer sess.Close()

		turns, err := readTurns(args, cmd.InOrStdin(), sess.Languages())
		if err != nil {
			return err
		}

		out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
		failed := 0
		for _, t := range turns {
			if err := sess.Interp.Check(t.code, vars); err != nil {
				failed++
				fmt.Fprintf(errOut, "%s ", ui.Dim(t.source+":"))
				ui.FormatError(errOut, err)
				continue
			}
			fmt.Fprintf(out, "%s ok\n", t.source)
		}
		if failed > 0 {
			return &exitError{code: 1}
		}
		return nil
	},
}

func init() {
	checkFlags.register(checkCmd)
	rootCmd.AddCommand(checkCmd)
}
