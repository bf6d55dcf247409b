package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantry-io/gantry/pkg/guest"
)

type guestEntry struct {
	ID           string   `json:"id"`
	Parent       string   `json:"parent,omitempty"`
	Depth        int      `json:"depth"`
	Capabilities []string `json:"capabilities,omitempty"`
}

func newGuestsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "guests",
		Short: "List registered guest OS families",
		Long: `List the registered guest forest and the capabilities each guest
implements directly. Script guests from the inventory are included
when the inventory can be loaded. No machine is contacted.`,
		Example: `  gantry guests
  gantry guests --json`,
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
				a.logger.Debug().Err(err).Msg("inventory unavailable, listing built-in guests only")
				inv = nil
			}
			reg, caps, err := a.registries(inv)
			if err != nil {
				return err
			}

			if jsonOutput {
				entries := make([]guestEntry, 0, reg.Len())
				for _, id := range reg.IDs() {
					def, _ := reg.Lookup(id)
					depth, err := reg.Depth(id)
					if err != nil {
						return err
					}
					entries = append(entries, guestEntry{
						ID:           string(id),
						Parent:       string(def.Parent),
						Depth:        depth,
						Capabilities: caps.Names(id),
					})
				}
				return printJSON(entries)
			}

			children := make(map[guest.ID][]guest.ID)
			roots := make([]guest.ID, 0)
			for _, id := range reg.IDs() {
				def, _ := reg.Lookup(id)
				if def.Parent == "" {
					roots = append(roots, id)
					continue
				}
				children[def.Parent] = append(children[def.Parent], id)
			}

			var walk func(id guest.ID, depth int)
			walk = func(id guest.ID, depth int) {
				line := strings.Repeat("  ", depth) + string(id)
				if names := caps.Names(id); len(names) > 0 {
					line += "  [" + strings.Join(names, ", ") + "]"
				}
				fmt.Println(line)
				for _, child := range children[id] {
					walk(child, depth+1)
				}
			}
			for _, root := range roots {
				walk(root, 0)
			}
			return nil
		},
	}
}
