package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newMachinesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machines",
		Short: "Inspect inventory machines and their history",
	}

	cmd.AddCommand(newMachinesListCommand())
	cmd.AddCommand(newMachinesHistoryCommand())

	return cmd
}

type machineListEntry struct {
	Name      string            `json:"name"`
	Address   string            `json:"address"`
	Guest     string            `json:"guest,omitempty"`
	LastGuest string            `json:"last_detected_guest,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

func newMachinesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List inventory machines",
		Long: `List the machines in the inventory. When a store is configured the
most recently detected guest of each machine is shown too.`,
		Example: `  gantry machines list
  gantry machines list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			inv, err := a.loadInventory()
			if err != nil {
				return err
			}

			entries := make([]machineListEntry, 0, len(inv.Machines))
			for _, mc := range inv.Machines {
				entry := machineListEntry{
					Name:    mc.Name,
					Address: mc.Address,
					Guest:   mc.Guest,
					Labels:  mc.Labels,
				}
				if a.store != nil {
					if rec, err := a.store.GetMachine(ctx, mc.Name); err == nil {
						if det, err := a.store.LatestDetection(ctx, rec.ID); err == nil {
							entry.LastGuest = det.Guest
						}
					}
				}
				entries = append(entries, entry)
			}

			if jsonOutput {
				return printJSON(entries)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tGUEST\tLAST DETECTED\tLABELS")
			for _, e := range entries {
				guest := e.Guest
				if guest == "" {
					guest = "(autodetect)"
				}
				labels := make([]string, 0, len(e.Labels))
				for k, v := range e.Labels {
					labels = append(labels, k+"="+v)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.Name, e.Address, guest, e.LastGuest, strings.Join(labels, ","))
			}
			return w.Flush()
		},
	}
}

func newMachinesHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <machine>",
		Short: "Show detection and capability history of a machine",
		Long: `Show past guest detections and capability runs of one machine,
newest first. Requires a configured store.`,
		Example: `  gantry machines history web01
  gantry machines history web01 --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if a.store == nil {
				return fmt.Errorf("no store configured; set store.path in the config")
			}

			rec, err := a.store.GetMachine(ctx, args[0])
			if err != nil {
				return err
			}

			detections, err := a.store.ListDetections(ctx, rec.ID, limit, 0)
			if err != nil {
				return err
			}
			runs, err := a.store.ListCapabilityRuns(ctx, rec.ID, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]any{
					"machine":    rec,
					"detections": detections,
					"runs":       runs,
				})
			}

			fmt.Printf("Machine %s (%s)\n\n", rec.Name, rec.Address)

			fmt.Println("Detections:")
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  WHEN\tGUEST\tMETHOD\tCHAIN\tDURATION")
			for _, d := range detections {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
					d.DetectedAt.Format("2006-01-02 15:04:05"), d.Guest, d.Method, d.Chain, d.Duration)
			}
			w.Flush()

			fmt.Println("\nCapability runs:")
			w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  WHEN\tCAPABILITY\tGUEST\tSTATUS\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Capability, r.Guest, r.Status, r.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max history entries to show")

	return cmd
}
