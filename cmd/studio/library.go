package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gwi.com/mermaid-studio/internal/catalog"
	"gwi.com/mermaid-studio/internal/store"
)

var examplesCmd = &cobra.Command{
	Use:   "examples [query]",
	Short: "List the built-in example diagrams",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load()
		if err != nil {
			return err
		}
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), cat.SearchGrouped(query))
		}
		printGroups(cmd.OutOrStdout(), cat.SearchGrouped(query))
		return nil
	},
}

var examplesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print an example's source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load()
		if err != nil {
			return err
		}
		ex, ok := cat.Find(args[0])
		if !ok {
			return fmt.Errorf("no example named %q", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), ex.Code)
		return nil
	},
}

var examplesLoadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Open an example as the current diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		ex, err := a.Studio.LoadExample(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Loaded %q.\n", ex.Name)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage saved snapshots",
}

var historyListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List snapshots, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		items := a.Studio.State().SearchHistory(query)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if items == nil {
				items = []store.HistoryItem{}
			}
			return printJSON(cmd.OutOrStdout(), items)
		}
		printHistory(cmd.OutOrStdout(), items)
		return nil
	},
}

var historySaveCmd = &cobra.Command{
	Use:   "save [label]",
	Short: "Snapshot the current diagram",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		label := ""
		if len(args) == 1 {
			label = args[0]
		}
		item, err := a.Studio.SaveSnapshot(label)
		if err != nil {
			return err
		}
		if item == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to save, the diagram is empty.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %q as %s.\n", item.Label, item.ID)
		return nil
	},
}

var historyLoadCmd = &cobra.Command{
	Use:   "load <id>",
	Short: "Restore a snapshot as the current diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		item, err := a.Studio.LoadHistory(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %q.\n", item.Label)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Studio.DeleteSnapshot(args[0])
	},
}

func init() {
	examplesCmd.Flags().Bool("json", false, "output as JSON")
	examplesCmd.AddCommand(examplesShowCmd, examplesLoadCmd)
	rootCmd.AddCommand(examplesCmd)

	historyListCmd.Flags().Bool("json", false, "output as JSON")
	historyCmd.AddCommand(historyListCmd, historySaveCmd, historyLoadCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}

func printGroups(w io.Writer, groups []catalog.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No examples match.")
		return
	}
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, strings.ToUpper(g.Category))
		for _, ex := range g.Examples {
			fmt.Fprintf(w, "  %s\n", ex.Name)
		}
	}
}

func printHistory(w io.Writer, items []store.HistoryItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSAVED")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.ID, item.Label, time.UnixMilli(item.Timestamp).Format(time.DateTime))
	}
	tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
