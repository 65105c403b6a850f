package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cachepledge.org/internal/registry"
	"cachepledge.org/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:         "stats",
	Short:       "Print the admin stats breakdown",
	Annotations: map[string]string{"db": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := stats.New(store).Admin(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out)
		}
		printStats(out)
		return nil
	},
}

func printStats(s stats.Admin) {
	fmt.Printf("pledges: %d  confirmations: %d  pledgers: %d  rainmakers: %d\n\n",
		s.TotalPledges, s.TotalConfirmations, s.TotalPledgers, s.Rainmakers)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tPLEDGES\tCONFIRMATIONS")
	states := make([]string, 0, len(s.StateBreakdown))
	for st := range s.StateBreakdown {
		states = append(states, string(st))
	}
	sort.Strings(states)
	for _, st := range states {
		c := s.StateBreakdown[registry.State(st)]
		fmt.Fprintf(w, "%s\t%d\t%d\n", st, c.Pledges, c.Confirmations)
	}
	_ = w.Flush()
}
