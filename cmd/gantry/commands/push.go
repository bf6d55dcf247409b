package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPushCommand() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "push <machine> <local> <remote>",
		Short: "Copy a local file to a machine",
		Long:  `Copy a local file to a machine over SFTP.`,
		Example: `  gantry push web01 ./nginx.conf /etc/nginx/nginx.conf

  # Push an executable
  gantry push web01 ./healthcheck /usr/local/bin/healthcheck --mode 0755`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			fileMode, err := strconv.ParseUint(mode, 8, 32)
			if err != nil {
				return fmt.Errorf("invalid mode %q: %w", mode, err)
			}

			a, err := newApp(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			inv, err := a.loadInventory()
			if err != nil {
				return err
			}

			m, err := a.connect(ctx, inv, args[0])
			if err != nil {
				return err
			}
			defer a.release(m)

			if err := m.Upload(ctx, args[1], args[2], uint32(fileMode)); err != nil {
				return err
			}

			fmt.Printf("Pushed %s to %s:%s\n", args[1], m.Config.Name, args[2])
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "0644", "remote file mode, octal")

	return cmd
}
