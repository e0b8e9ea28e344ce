package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/davisfield/switchboard/internal/store"
)

func newSendCmd() *cobra.Command {
	var (
		configPath string
		from       string
		to         string
		msgType    string
		payload    string
		contextID  string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to an agent",
		Long:  "Sends a typed message from one registered agent to another, with an optional context ID to thread related messages.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var fields map[string]interface{}
			if err := json.Unmarshal([]byte(payload), &fields); err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}

			_, st, _, err := openStore(configPath)
			if err != nil {
				return err
			}

			msg, err := st.Send(from, to, msgType, fields, store.SendOpts{ContextID: contextID})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent message %d to %s\n", msg.ID, to)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&from, "from", "", "sender agent name (required)")
	cmd.Flags().StringVar(&to, "to", "", "recipient agent name (required)")
	cmd.Flags().StringVar(&msgType, "type", "", "message type, e.g. TASK_DELEGATION (required)")
	cmd.Flags().StringVar(&payload, "payload", "{}", "payload as a JSON object")
	cmd.Flags().StringVar(&contextID, "context", "", "context ID to thread related messages")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("type")
	return cmd
}

func newInboxCmd() *cobra.Command {
	var (
		configPath string
		agent      string
		afterID    uint
		limit      int
		types      []string
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "View an agent's inbox",
		Long:  "Lists messages addressed to an agent, newest first. Use --after to page past an acknowledged cursor.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, _, err := openStore(configPath)
			if err != nil {
				return err
			}

			msgs, err := st.Receive(agent, afterID, limit, types...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintf(out, "No messages for %s\n", agent)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFROM\tTYPE\tSTATUS\tCONTEXT\tCREATED")
			for _, m := range msgs {
				context := "-"
				if m.ContextID != nil {
					context = *m.ContextID
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.Sender, m.Type, m.Status, context,
					m.CreatedAt.Format("2006-01-02 15:04"))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name to check inbox (required)")
	cmd.Flags().UintVar(&afterID, "after", 0, "only show messages newer than this message ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to list")
	cmd.Flags().StringSliceVar(&types, "type", nil, "filter by message type (repeatable)")
	cmd.MarkFlagRequired("agent")
	return cmd
}

func newAckCmd() *cobra.Command {
	var (
		configPath string
		by         string
	)

	cmd := &cobra.Command{
		Use:   "ack <message-id>",
		Short: "Acknowledge a message",
		Long:  "Marks a message as acknowledged by the given agent. Acknowledging twice is a no-op.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid message ID: %w", err)
			}

			_, st, _, err := openStore(configPath)
			if err != nil {
				return err
			}

			msg, err := st.Acknowledge(uint(id), by)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged message %d (%s from %s)\n", msg.ID, msg.Type, msg.Sender)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&by, "by", "", "acknowledging agent name (required)")
	cmd.MarkFlagRequired("by")
	return cmd
}
