package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a template's execution history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, cleanup, err := openRepository(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			history, err := repo.GetHistory(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}

			if asJSON {
				return printJSON(history)
			}
			if len(history) == 0 {
				fmt.Println("No executions recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "When\tStatus\tExpense\tError")
			for _, e := range history {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					formatMillis(e.Timestamp), e.Status, e.CreatedExpenseID, e.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
