package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xtendabl/expensabl/internal/engine"
	"github.com/xtendabl/expensabl/internal/model"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage expense templates",
		Long:  `Create, list, inspect, and delete reusable expense templates.`,
	}

	cmd.AddCommand(listTemplatesCmd())
	cmd.AddCommand(showTemplateCmd())
	cmd.AddCommand(createTemplateCmd())
	cmd.AddCommand(deleteTemplateCmd())
	cmd.AddCommand(favoriteTemplateCmd())

	return cmd
}

func listTemplatesCmd() *cobra.Command {
	var (
		page, limit    int
		sortBy, order  string
		search         string
		tags           []string
		favorite       bool
		scheduled      bool
		asJSON, full   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			repo, cleanup, err := openRepository(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := model.ListOptions{
				Page:      page,
				Limit:     limit,
				SortBy:    model.SortField(sortBy),
				SortOrder: model.SortOrder(order),
				Search:    search,
				Tags:      tags,
				Hydrate:   full,
			}
			if cmd.Flags().Changed("favorite") {
				opts.Favorite = &favorite
			}
			if cmd.Flags().Changed("scheduled") {
				opts.HasScheduling = &scheduled
			}

			result, err := repo.List(ctx, opts)
			if err != nil {
				return fmt.Errorf("failed to list templates: %w", err)
			}

			if asJSON {
				return printJSON(result)
			}

			if result.Total == 0 {
				fmt.Println("No templates found. Use 'expensabl templates create' to add one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintln(w, "ID\tName\tNext Run\tUses\tTags\tFav")
			for _, item := range result.Items {
				next := "-"
				if item.Summary.NextExecution != nil {
					next = formatMillis(*item.Summary.NextExecution)
				}
				fav := ""
				if item.Summary.Favorite {
					fav = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					item.ID, item.Summary.Name, next, item.Summary.UseCount,
					strings.Join(item.Summary.Tags, ","), fav)
			}
			fmt.Fprintf(w, "\npage %d of %d templates", result.Page, result.Total)
			if result.HasMore {
				fmt.Fprint(w, " (more available)")
			}
			fmt.Fprintln(w)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&sortBy, "sort", "name", "sort field (name, createdAt, updatedAt, lastUsed, useCount)")
	cmd.Flags().StringVar(&order, "order", "asc", "sort order (asc, desc)")
	cmd.Flags().StringVar(&search, "search", "", "free-text search over names")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "filter by tag (repeatable)")
	cmd.Flags().BoolVar(&favorite, "favorite", false, "filter by favorite flag")
	cmd.Flags().BoolVar(&scheduled, "scheduled", false, "filter by scheduling state")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().BoolVar(&full, "full", false, "load full records instead of index projections")

	return cmd
}

func showTemplateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, cleanup, err := openRepository(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := repo.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load template: %w", err)
			}
			if t == nil {
				return fmt.Errorf("template %s not found", args[0])
			}

			if asJSON {
				return printJSON(t)
			}

			fmt.Printf("Name:      %s\n", t.Name)
			fmt.Printf("ID:        %s\n", t.ID)
			fmt.Printf("Created:   %s\n", formatMillis(t.CreatedAt))
			fmt.Printf("Updated:   %s\n", formatMillis(t.UpdatedAt))
			fmt.Printf("Expense:   %.2f %s at %s\n", t.ExpenseData.Amount, t.ExpenseData.Currency, t.ExpenseData.Merchant)
			if len(t.Metadata.Tags) > 0 {
				fmt.Printf("Tags:      %s\n", strings.Join(t.Metadata.Tags, ", "))
			}
			fmt.Printf("Uses:      %d (%d scheduled)\n", t.Metadata.UseCount, t.Metadata.ScheduledUseCount)
			if t.Scheduling != nil && t.Scheduling.Enabled {
				state := "active"
				if t.Scheduling.Paused {
					state = "paused"
				}
				fmt.Printf("Schedule:  %s (%s)\n", t.Scheduling.Interval, state)
				if t.Scheduling.NextExecution != nil {
					fmt.Printf("Next run:  %s\n", formatMillis(*t.Scheduling.NextExecution))
				}
			} else {
				fmt.Println("Schedule:  none")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func createTemplateCmd() *cobra.Command {
	var in engine.CreateTemplateInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			mgr, _, cleanup, err := openManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := mgr.CreateTemplate(ctx, in)
			if err != nil {
				return err
			}

			fmt.Printf("Created template %s (%s)\n", t.Name, t.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "template name (required)")
	cmd.Flags().Float64Var(&in.Amount, "amount", 0, "expense amount (required)")
	cmd.Flags().StringVar(&in.Currency, "currency", "USD", "ISO currency code")
	cmd.Flags().StringVar(&in.Merchant, "merchant", "", "merchant name (required)")
	cmd.Flags().StringVar(&in.Date, "date", "", "expense date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Description, "description", "", "expense description")
	cmd.Flags().StringVar(&in.Category, "category", "", "expense category")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().BoolVar(&in.Favorite, "favorite", false, "mark as favorite")
	cmd.Flags().StringVar(&in.SourceExpenseID, "from-expense", "", "source expense id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("merchant")

	return cmd
}

func deleteTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, cleanup, err := openManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := mgr.DeleteTemplate(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete template: %w", err)
			}
			fmt.Printf("Deleted template %s\n", args[0])
			return nil
		},
	}
}

func favoriteTemplateCmd() *cobra.Command {
	var unset bool

	cmd := &cobra.Command{
		Use:   "favorite <id>",
		Short: "Mark or unmark a template as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mgr, _, cleanup, err := openManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			fav := !unset
			t, err := mgr.UpdateTemplate(ctx, args[0], model.TemplateUpdate{Favorite: &fav})
			if err != nil {
				return err
			}
			if fav {
				fmt.Printf("Marked %s as favorite\n", t.Name)
			} else {
				fmt.Printf("Unmarked %s as favorite\n", t.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&unset, "unset", false, "remove the favorite flag")
	return cmd
}
