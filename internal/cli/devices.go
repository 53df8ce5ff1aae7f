package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDevicesCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := app.listDevicesFn()
			if err != nil {
				return fmt.Errorf("list capture devices: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "no capture devices found")
				return nil
			}
			for _, device := range devices {
				marker := " "
				if device.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, device.Name)
			}
			return nil
		},
	}
}
