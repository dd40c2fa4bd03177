/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// dtrCmd represents the dtr command
var dtrCmd = &cobra.Command{
	Use:   "dtr <endpoint> <state>",
	Short: "Control DTR (Data Terminal Ready) signal",
	Long: `Set the DTR (Data Terminal Ready) signal on the serial port of a device.

The proxy applies the "dtr:1" or "dtr:0" command it receives to its port.

Examples:
  wsserial dtr rock64.local high
  wsserial dtr rock64.local low
  wsserial dtr 10.0.0.12 off

Valid states: high, low, on, off, true, false, 1, 0`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		endpoint := args[0]

		state, err := parseSignalState(args[1])
		if err != nil {
			fail("%v", err)
		}

		if err := setDTR(cmd.Context(), endpoint, state); err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s DTR set to %s on %s\n", successStyle.Render("✓"), formatSignalState(state), endpoint)
	},
}

func init() {
	rootCmd.AddCommand(dtrCmd)
}

func setDTR(ctx context.Context, endpoint string, state bool) error {
	m, done, err := openDevice(ctx, endpoint)
	if err != nil {
		return err
	}
	defer done()

	if err := m.SetSignals(state); err != nil {
		return fmt.Errorf("failed to set DTR: %w", err)
	}
	return nil
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}

func formatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}
