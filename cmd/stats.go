package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/lingua/internal/app"
	"github.com/abhisek/lingua/internal/interaction"
	"github.com/abhisek/lingua/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats <user> <module>",
	Short: "Show a learner's performance on a module",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		cat, schemas, err := app.LoadContent(cfg.Engine.CatalogDir, nil)
		if err != nil {
			return err
		}
		if _, err := cat.Module(args[1]); err != nil {
			return err
		}

		agg := stats.NewAggregator(st.EventRepo(), schemas, nil)
		perf, err := agg.ModulePerformance(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if perf.Overall.Total == 0 {
			fmt.Fprintf(out, "No answers recorded for %s on %s.\n", args[0], args[1])
			return nil
		}

		fmt.Fprintf(out, "%-10s  %7s  %7s  %8s\n", "Skill", "Correct", "Total", "Accuracy")
		fmt.Fprintln(out, strings.Repeat("─", 38))
		for _, skill := range interaction.AllSkills() {
			t, ok := perf.BySkill[skill]
			if !ok {
				continue
			}
			fmt.Fprintf(out, "%-10s  %7d  %7d  %7d%%\n", skill, t.Correct, t.Total, t.Accuracy)
		}
		fmt.Fprintln(out, strings.Repeat("─", 38))
		fmt.Fprintf(out, "%-10s  %7d  %7d  %7d%%\n", "overall", perf.Overall.Correct, perf.Overall.Total, perf.Overall.Accuracy)
		return nil
	},
}
