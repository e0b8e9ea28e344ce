package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/knowledge"
)

func newKnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Knowledge index commands",
	}

	cmd.AddCommand(newKnowledgeSearchCmd())
	cmd.AddCommand(newKnowledgeShareCmd())
	return cmd
}

// buildIndex rebuilds the in-memory index from the trailing message window.
func buildIndex(configPath string, window time.Duration) (*knowledge.Indexer, error) {
	cfg, st, dir, err := openStore(configPath)
	if err != nil {
		return nil, err
	}

	idx, err := knowledge.New(cfg.Knowledge, st, dir, classify.New(), nil)
	if err != nil {
		return nil, err
	}

	msgs, err := st.Window(window)
	if err != nil {
		return nil, err
	}
	idx.Index(msgs)
	return idx, nil
}

func newKnowledgeSearchCmd() *cobra.Command {
	var (
		configPath string
		window     time.Duration
		category   string
		tag        string
		source     string
		requester  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge index",
		Long:  "Rebuilds the knowledge index from the trailing message window and ranks items against the query.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := buildIndex(configPath, window)
			if err != nil {
				return err
			}

			results := idx.Search(strings.Join(args, " "), knowledge.Filters{
				Category:  category,
				Tag:       tag,
				Source:    source,
				Requester: requester,
				Limit:     limit,
			})

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No matching knowledge items.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCORE\tCATEGORY\tSOURCE\tCONTENT")
			for _, r := range results {
				content := r.Item.Content
				if len(content) > 60 {
					content = content[:57] + "..."
				}
				fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%s\n",
					r.Item.ID, r.Score, r.Item.Category, r.Item.SourceAgent, content)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "trailing window to index")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	cmd.Flags().StringVar(&source, "source", "", "filter by source agent")
	cmd.Flags().StringVar(&requester, "requester", "", "apply category access control for this agent")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func newKnowledgeShareCmd() *cobra.Command {
	var (
		configPath string
		window     time.Duration
		to         string
		by         string
	)

	cmd := &cobra.Command{
		Use:   "share <item-id>",
		Short: "Share a knowledge item with an agent",
		Long:  "Sends an indexed item as a KNOWLEDGE_SHARE message, subject to the target role's category access.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := buildIndex(configPath, window)
			if err != nil {
				return err
			}

			msg, err := idx.Share(args[0], to, by)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Shared item %s with %s (message %d)\n", args[0], to, msg.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "trailing window to index")
	cmd.Flags().StringVar(&to, "to", "", "recipient agent name (required)")
	cmd.Flags().StringVar(&by, "by", "", "sharing agent name (required)")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("by")
	return cmd
}
