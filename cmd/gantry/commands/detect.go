package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantry-io/gantry/pkg/config"
	"github.com/gantry-io/gantry/pkg/guest"
	"github.com/gantry-io/gantry/pkg/stores"
	"github.com/gantry-io/gantry/pkg/telemetry"
)

type detectResult struct {
	Machine  string   `json:"machine"`
	Guest    string   `json:"guest,omitempty"`
	Method   string   `json:"method"`
	Chain    []string `json:"chain,omitempty"`
	Duration string   `json:"duration"`
	Error    string   `json:"error,omitempty"`
}

func newDetectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <machine> [machine...]",
		Short: "Resolve the guest OS family of one or more machines",
		Long: `Resolve which guest OS family each machine runs.

When the inventory pins a guest the pinned value is used without
probing. Otherwise registered guests are probed over SSH, most
specific family first, and the first match wins. The resolved guest
and its ancestry chain are printed and, when a store is configured,
recorded for later inspection with "gantry machines history".`,
		Example: `  # Autodetect the guest of web01
  gantry detect web01

  # Several machines, as JSON
  gantry detect web01 db01 --json`,
		Args: cobra.MinimumNArgs(1),
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
			reg, caps, err := a.registries(inv)
			if err != nil {
				return err
			}

			results := make([]detectResult, 0, len(args))
			failed := 0
			for _, name := range args {
				result := a.detectOne(ctx, inv, reg, caps, name)
				if result.Error != "" {
					failed++
				}
				results = append(results, result)
			}

			if jsonOutput {
				if err := printJSON(results); err != nil {
					return err
				}
			} else {
				for i, r := range results {
					if i > 0 {
						fmt.Println()
					}
					fmt.Printf("Machine:  %s\n", r.Machine)
					if r.Error != "" {
						fmt.Printf("Error:    %s\n", r.Error)
						continue
					}
					fmt.Printf("Guest:    %s (%s)\n", r.Guest, r.Method)
					fmt.Printf("Chain:    %s\n", strings.Join(r.Chain, " -> "))
					fmt.Printf("Duration: %s\n", r.Duration)
				}
			}

			if failed > 0 {
				return fmt.Errorf("detection failed for %d of %d machines", failed, len(args))
			}
			return nil
		},
	}

	return cmd
}

// detectOne connects to one machine, resolves its guest and records the
// outcome. Failures are reported in the result, not returned, so a bad
// machine does not stop the rest of the batch.
func (a *app) detectOne(ctx context.Context, inv *config.Inventory, reg *guest.Registry, caps *guest.CapabilityRegistry, name string) detectResult {
	result := detectResult{Machine: name, Method: string(stores.DetectionMethodAutodetect)}

	m, err := a.connect(ctx, inv, name)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer a.release(m)

	if m.ExplicitGuest() != "" {
		result.Method = string(stores.DetectionMethodExplicit)
	}

	ctx, span := a.tracer.StartDetectSpan(ctx, name)
	defer span.End()

	resolver := guest.NewResolver(m, reg, caps, guest.WithLogger(a.logger))

	start := time.Now()
	err = resolver.Detect(ctx)
	elapsed := time.Since(start)
	result.Duration = elapsed.Round(time.Millisecond).String()

	if err != nil {
		telemetry.RecordError(span, err)
		a.metrics.RecordDetection("", result.Method, elapsed)
		result.Error = err.Error()
		return result
	}
	telemetry.RecordSuccess(span)
	a.metrics.RecordDetection(string(resolver.Resolved()), result.Method, elapsed)

	result.Guest = string(resolver.Resolved())
	for _, id := range resolver.Chain() {
		result.Chain = append(result.Chain, string(id))
	}

	if rec, err := a.persistMachine(ctx, m); err != nil {
		a.logger.Warn().Err(err).Str("machine", name).Msg("persisting machine")
	} else if rec != nil {
		chainJSON, _ := json.Marshal(result.Chain)
		detection := &stores.Detection{
			MachineID: rec.ID,
			Guest:     result.Guest,
			Method:    stores.DetectionMethod(result.Method),
			Chain:     string(chainJSON),
			Duration:  elapsed,
		}
		if err := a.store.RecordDetection(ctx, detection); err != nil {
			a.logger.Warn().Err(err).Str("machine", name).Msg("recording detection")
		}
	}

	return result
}
