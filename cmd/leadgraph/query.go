package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leadgraph/leadgraph/internal/cli/ui"
	"github.com/leadgraph/leadgraph/internal/engine/executor"
)

var queryJSONOutput bool

var queryCmd = &cobra.Command{
	Use:   "query [descriptor.json]",
	Short: "Run a query descriptor",
	Long: `Execute a structured query descriptor against the graph. The
descriptor is read from the given file, or from stdin when no file is
given.

Example descriptor:

  {
    "query_type": "count",
    "root_entity_type": "municipality",
    "filters": {"geographic_filter": ["DE"], "facet_types": [{"slug": "pain_point"}]}
  }`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if len(args) == 1 {
			raw, err = os.ReadFile(args[0])
		} else {
			raw, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("failed to read descriptor: %w", err)
		}

		var desc executor.Descriptor
		if err := json.Unmarshal(raw, &desc); err != nil {
			return fmt.Errorf("failed to parse descriptor: %w", err)
		}

		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		result, err := eng.executor.Execute(context.Background(), &desc)
		if err != nil {
			return err
		}

		if queryJSONOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		printResult(&desc, result)
		return nil
	},
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSONOutput, "json", false, "print the raw result as JSON")
}

func printResult(desc *executor.Descriptor, result *executor.Result) {
	switch desc.QueryType {
	case executor.QueryCount:
		fmt.Printf("%d\n", result.Count)
	case executor.QueryList:
		table := ui.NewTable(os.Stdout, "ID", "NAME", "LOCATION", "CREATED")
		for _, item := range result.Items {
			location := ""
			if item.Location != nil {
				location = *item.Location
			}
			table.AddRow(item.ID.String(), item.Name, location,
				item.CreatedAt.Format("2006-01-02"))
		}
		table.Render()
		fmt.Printf("\nPage %d (%d per page), %d total\n",
			result.Page, result.PerPage, result.Total)
	case executor.QueryAggregate:
		if result.Groups != nil {
			table := ui.NewTable(os.Stdout, "GROUP", "VALUE")
			keys := make([]string, 0, len(result.Groups))
			for key := range result.Groups {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				table.AddRow(key, strconv.FormatFloat(result.Groups[key], 'f', -1, 64))
			}
			table.Render()
		} else {
			fmt.Printf("%s\n", strconv.FormatFloat(result.Value, 'f', -1, 64))
		}
	}
}
