package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantry-io/gantry/pkg/guest"
	"github.com/gantry-io/gantry/pkg/policy"
	"github.com/gantry-io/gantry/pkg/stores"
	"github.com/gantry-io/gantry/pkg/telemetry"
)

type runResult struct {
	Machine    string   `json:"machine"`
	Guest      string   `json:"guest"`
	Capability string   `json:"capability"`
	Status     string   `json:"status"`
	Output     any      `json:"output,omitempty"`
	Violations []string `json:"violations,omitempty"`
	Duration   string   `json:"duration"`
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <machine> <capability> [args...]",
		Short: "Dispatch a capability on a machine",
		Long: `Resolve the machine's guest and dispatch a named capability.

The capability is looked up along the guest's ancestry chain, most
specific guest first, so a distribution-specific implementation
overrides a generic one. When the policy engine is enabled the call
is evaluated first and blocking violations deny it.`,
		Example: `  # Install packages with whatever package manager the guest uses
  gantry run web01 package.install curl jq

  # Restart a service
  gantry run web01 service.restart nginx

  # Reboot, subject to policy
  gantry run db01 reboot`,
		Args: cobra.MinimumNArgs(2),
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

			m, err := a.connect(ctx, inv, args[0])
			if err != nil {
				return err
			}
			defer a.release(m)

			resolver := guest.NewResolver(m, reg, caps, guest.WithLogger(a.logger))
			if err := resolver.Detect(ctx); err != nil {
				return err
			}

			capName := args[1]
			capArgs := make([]any, 0, len(args)-2)
			for _, arg := range args[2:] {
				capArgs = append(capArgs, arg)
			}

			rec, err := a.persistMachine(ctx, m)
			if err != nil {
				a.logger.Warn().Err(err).Msg("persisting machine")
			}

			if a.engine != nil {
				decision, err := a.engine.Evaluate(ctx, &policy.Input{
					Machine: policy.MachineInput{
						Name:   m.Config.Name,
						Labels: m.Labels(),
					},
					Guest:      string(resolver.Resolved()),
					Capability: capName,
					Args:       capArgs,
					User:       currentUser(),
					Timestamp:  time.Now().UTC(),
				})
				if err != nil {
					return fmt.Errorf("evaluating policies: %w", err)
				}
				if blocking := decision.Blocking(); len(blocking) > 0 {
					messages := make([]string, 0, len(blocking))
					for _, v := range blocking {
						a.metrics.RecordPolicyDenial(v.Policy)
						messages = append(messages, fmt.Sprintf("%s: %s", v.Policy, v.Message))
					}
					recordRun(ctx, a, rec, resolver, capName, capArgs, stores.RunStatusDenied, "", messages[0], 0)
					if jsonOutput {
						printJSON(runResult{
							Machine:    m.Config.Name,
							Guest:      string(resolver.Resolved()),
							Capability: capName,
							Status:     string(stores.RunStatusDenied),
							Violations: messages,
							Duration:   "0s",
						})
					}
					return fmt.Errorf("capability %q denied by policy: %s", capName, messages[0])
				}
			}

			ctx, span := a.tracer.StartCapabilitySpan(ctx, m.Config.Name, string(resolver.Resolved()), capName)
			defer span.End()

			start := time.Now()
			result, err := resolver.Capability(ctx, capName, capArgs...)
			elapsed := time.Since(start)

			status := stores.RunStatusSucceeded
			output := ""
			errMsg := ""
			if err != nil {
				status = stores.RunStatusFailed
				errMsg = err.Error()
				telemetry.RecordError(span, err)
			} else {
				output = fmt.Sprintf("%v", result)
				telemetry.RecordSuccess(span)
			}
			a.metrics.RecordCapabilityCall(capName, string(resolver.Resolved()), string(status), elapsed)
			recordRun(ctx, a, rec, resolver, capName, capArgs, status, output, errMsg, elapsed)

			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(runResult{
					Machine:    m.Config.Name,
					Guest:      string(resolver.Resolved()),
					Capability: capName,
					Status:     string(status),
					Output:     result,
					Duration:   elapsed.Round(time.Millisecond).String(),
				})
			}

			fmt.Printf("Capability %s on %s (%s) succeeded in %s\n",
				capName, m.Config.Name, resolver.Resolved(), elapsed.Round(time.Millisecond))
			if output != "" && output != "<nil>" {
				fmt.Println(output)
			}
			return nil
		},
	}

	return cmd
}

// recordRun persists one capability run when a store is configured.
func recordRun(ctx context.Context, a *app, rec *stores.Machine, resolver *guest.Resolver, capName string, capArgs []any, status stores.RunStatus, output, errMsg string, elapsed time.Duration) {
	if a.store == nil || rec == nil {
		return
	}

	argsJSON, _ := json.Marshal(capArgs)
	run := &stores.CapabilityRun{
		MachineID:  rec.ID,
		Guest:      string(resolver.Resolved()),
		Capability: capName,
		Args:       string(argsJSON),
		StartedAt:  time.Now().UTC().Add(-elapsed),
	}
	if err := a.store.StartCapabilityRun(ctx, run); err != nil {
		a.logger.Warn().Err(err).Msg("recording capability run")
		return
	}
	if err := a.store.CompleteCapabilityRun(ctx, run.ID, status, output, errMsg); err != nil {
		a.logger.Warn().Err(err).Msg("completing capability run")
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
