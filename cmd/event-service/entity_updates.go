package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"ms-events/internal/models"
	"ms-events/internal/schema"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var entityUpdatesCmd = &cobra.Command{
	Use:     "entity-updates",
	Aliases: []string{"entup"},
	Short:   "Apply pending entity/field definition updates",
	Long: `Compare the declared entity field definitions with the live tables,
list what differs and apply the changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		yes, _ := cmd.Flags().GetBool("yes")

		db, err := openDB(ctx, true)
		if err != nil {
			return err
		}
		defer db.Close()

		manager := schema.NewUpdateManager(db, models.EntityTypes, log)
		summary, err := manager.ChangeSummary(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(summary) == 0 {
			color.New(color.FgGreen).Fprintln(out, "No outstanding entity/field definition updates.")
			return nil
		}

		printSummary(out, summary)
		if !yes && !confirm(out, cmd.InOrStdin(), "Do you wish to run all pending updates?") {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}

		if err := manager.ApplyUpdates(ctx); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintln(out, "The entity/field definition updates listed above have been applied successfully.")
		return nil
	},
}

func printSummary(out io.Writer, summary map[string][]string) {
	ids := make([]string, 0, len(summary))
	for id := range summary {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bold := color.New(color.Bold)
	for _, id := range ids {
		title := id
		if et, ok := models.EntityTypeByID(id); ok {
			title = et.Label
		}
		bold.Fprintf(out, "%s entity type:\n", title)
		for _, change := range summary[id] {
			fmt.Fprintf(out, "  - %s\n", change)
		}
	}
}

func confirm(out io.Writer, in io.Reader, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func init() {
	entityUpdatesCmd.Flags().BoolP("yes", "y", false, "apply without asking")
	rootCmd.AddCommand(entityUpdatesCmd)
}
