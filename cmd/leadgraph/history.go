package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/leadgraph/leadgraph/internal/cli/ui"
	"github.com/leadgraph/leadgraph/internal/engine/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <entity|facet_value> <id>",
	Short: "Show the change history of an entity or facet value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, targetID, err := parseTarget(args)
		if err != nil {
			return err
		}

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		records, err := eng.tracker.GetChangeHistory(context.Background(), kind, targetID, historyLimit, 0)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No recorded changes")
			return nil
		}

		table := ui.NewTable(os.Stdout, "VERSION", "CHANGED BY", "WHEN", "FIELDS", "REASON")
		for _, record := range records {
			label := strings.Join(record.Diff.Fields(), ", ")
			if record.IsUndo {
				label += " (undo)"
			}
			table.AddRow(
				fmt.Sprintf("%d", record.Version),
				record.ChangedBy,
				record.CreatedAt.Format("2006-01-02 15:04"),
				label,
				record.Reason,
			)
		}
		table.Render()
		return nil
	},
}

var undoYes bool

var undoCmd = &cobra.Command{
	Use:   "undo <entity|facet_value> <id>",
	Short: "Undo the most recent change of an entity or facet value",
	Long: `Revert the latest recorded change. The undo is recorded as a new
version, so it can itself be undone. The undo is refused when the row
was modified since the change being reverted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, targetID, err := parseTarget(args)
		if err != nil {
			return err
		}

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx := context.Background()
		records, err := eng.tracker.GetChangeHistory(ctx, kind, targetID, 1, 0)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return history.ErrNothingToUndo
		}

		latest := records[0]
		diffJSON, _ := json.MarshalIndent(latest.Diff, "", "  ")
		fmt.Printf("Latest change (version %d by %s):\n%s\n", latest.Version, latest.ChangedBy, diffJSON)

		if !undoYes {
			confirmed := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("Revert version %d?", latest.Version),
			}
			if err := survey.AskOne(prompt, &confirmed); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Aborted")
				return nil
			}
		}

		result, err := eng.tracker.UndoLastChange(ctx, kind, targetID, currentActor())
		if err != nil {
			return err
		}
		ui.Successf(os.Stdout, "Reverted %s as version %d",
			strings.Join(result.RevertedFields, ", "), result.NewVersion)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to show")
	undoCmd.Flags().BoolVarP(&undoYes, "yes", "y", false, "skip the confirmation prompt")
}

func parseTarget(args []string) (history.TargetKind, uuid.UUID, error) {
	var kind history.TargetKind
	switch args[0] {
	case "entity":
		kind = history.TargetEntity
	case "facet_value", "facet":
		kind = history.TargetFacet
	default:
		return "", uuid.Nil, fmt.Errorf("unknown target kind %q (want entity or facet_value)", args[0])
	}

	targetID, err := uuid.Parse(args[1])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid id %q: %w", args[1], err)
	}
	return kind, targetID, nil
}

func currentActor() string {
	if actor := os.Getenv("LEADGRAPH_ACTOR"); actor != "" {
		return actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "cli"
}
