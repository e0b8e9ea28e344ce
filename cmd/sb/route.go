package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/davisfield/switchboard/internal/classify"
	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/router"
	"github.com/davisfield/switchboard/internal/store"
)

func newRouteCmd() *cobra.Command {
	var (
		configPath string
		from       string
		urgency    string
		dispatch   bool
		check      string
	)

	cmd := &cobra.Command{
		Use:   "route <task description>",
		Short: "Route a task to the best-fit agent",
		Long: `Classifies a task description and selects the best-fit agent by
capability match, with direct category rules and overload fallback.
With --dispatch the delegation is sent to the chosen agent; with
--check the description is verified against an existing assignee instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")

			cfg, st, dir, err := openStore(configPath)
			if err != nil {
				return err
			}

			rt, err := router.New(st, dir, classify.New(), cfg.Routing)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if check != "" {
				v, err := rt.CheckSpecialization(task, check)
				if err != nil {
					return err
				}
				if v == nil {
					fmt.Fprintf(out, "Assignment of %q to %s is sound.\n", task, check)
					return nil
				}
				fmt.Fprintf(out, "Violation (%s, %s): %s\n", v.Type, v.Severity, v.Detail)
				return nil
			}

			d, err := rt.Route(task, from, urgency)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Category:   %s\n", d.Category)
			fmt.Fprintf(out, "Agent:      %s\n", d.Agent)
			fmt.Fprintf(out, "Impact:     %s\n", d.BusinessImpact)
			fmt.Fprintf(out, "Duration:   %s\n", d.EstimatedDuration)
			fmt.Fprintf(out, "Reasoning:  %s\n", d.Reasoning)

			if !dispatch {
				return nil
			}

			msg, err := st.Send(from, d.Agent, models.TypeDelegation, map[string]interface{}{
				"task":            task,
				"category":        d.Category,
				"business_impact": d.BusinessImpact,
				"urgency":         urgency,
			}, store.SendOpts{})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Dispatched delegation %d to %s\n", msg.ID, d.Agent)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&from, "from", "", "requesting agent name (required)")
	cmd.Flags().StringVar(&urgency, "urgency", "", "task urgency, e.g. high")
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "send the delegation to the chosen agent")
	cmd.Flags().StringVar(&check, "check", "", "verify the task against this assignee instead of routing")
	cmd.MarkFlagRequired("from")
	return cmd
}

func newLoadCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "load [agent]",
		Short: "Show agent delegation load",
		Long:  "Reports open delegations against each agent's concurrency limit. With no argument, lists every registered agent.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, dir, err := openStore(configPath)
			if err != nil {
				return err
			}

			rt, err := router.New(st, dir, classify.New(), cfg.Routing)
			if err != nil {
				return err
			}

			var agents []string
			if len(args) == 1 {
				agents = args
			} else {
				for _, p := range dir.All() {
					agents = append(agents, p.Name)
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tOPEN\tMAX\tAVAILABLE")
			for _, a := range agents {
				ls, err := rt.CheckLoad(a)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%v\n", ls.Agent, ls.OpenTasks, ls.MaxConcurrent, ls.IsAvailable)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}
