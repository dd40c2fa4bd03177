/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// baudCmd represents the baud command
var baudCmd = &cobra.Command{
	Use:   "baud <endpoint> [rate]",
	Short: "Show or change the baud rate",
	Long: `Change the baud rate of the serial port behind a device proxy.

The rate is persisted and sent to the device as the first frame of every
later connection. Without a rate the persisted value is printed.

Examples:
  wsserial baud rock64.local 9600
  wsserial baud rock64.local`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		endpoint := args[0]

		if len(args) == 1 {
			m, _, err := newManager(false)
			if err != nil {
				fail("%v", err)
			}
			fmt.Printf("%d\n", m.Baud())
			return
		}

		rate, err := strconv.Atoi(args[1])
		if err != nil {
			fail("invalid baud rate: %s", args[1])
		}

		m, done, err := openDevice(cmd.Context(), endpoint)
		if err != nil {
			fail("%v", err)
		}
		previous := m.Baud()
		_, err = m.SetBaud(rate)
		done()
		if err != nil {
			fail("%v", err)
		}

		fmt.Printf("%s Baud rate on %s changed from %d to %d\n", successStyle.Render("✓"), endpoint, previous, rate)
	},
}

func init() {
	rootCmd.AddCommand(baudCmd)
}
