/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	wsserial "github.com/allbin/go-wsserial"
)

// devicesCmd groups the device registry commands
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage known devices",
	Long: `Known devices are kept in the state file in the order they were added.
A device is identified by its endpoint, a hostname or IP address of the
machine running the proxy.`,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known devices",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		m, _, err := newManager(false)
		if err != nil {
			fail("%v", err)
		}

		devices := m.Devices()
		if len(devices) == 0 {
			fmt.Println("No known devices. Add one with 'wsserial devices add <endpoint>'.")
			return
		}

		asTable, _ := cmd.Flags().GetBool("table")
		if !asTable {
			for _, d := range devices {
				fmt.Println(d.Endpoint)
			}
			return
		}

		cfg := wsserial.Config{Port: viper.GetInt("port"), Scheme: viper.GetString("scheme")}
		rows := make([]table.Row, 0, len(devices))
		for _, d := range devices {
			ch, err := wsserial.NewChannel(d.Endpoint, cfg)
			url := "invalid"
			if err == nil {
				url = ch.URL()
			}
			rows = append(rows, table.NewRow(table.RowData{
				"endpoint": d.Endpoint,
				"name":     d.DisplayName,
				"url":      url,
			}))
		}

		fmt.Printf("Found %d device(s):\n", len(devices))
		fmt.Println(renderTable([]table.Column{
			table.NewColumn("endpoint", "Endpoint", 24),
			table.NewColumn("name", "Name", 20),
			table.NewColumn("url", "URL", 36),
		}, rows))
	},
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <endpoint>",
	Short: "Add a device",
	Long: `Add a device to the known devices. The endpoint must be a bare hostname
or IP address; the scheme and port are added when connecting.

Example usage:
  wsserial devices add rock64.local
  wsserial devices add 10.0.0.12 --name "Test rig"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		endpoint := args[0]
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = endpoint
		}

		m, _, err := newManager(false)
		if err != nil {
			fail("%v", err)
		}

		err = m.AddDevice(endpoint, name)
		switch {
		case errors.Is(err, wsserial.ErrDuplicateDevice):
			fmt.Printf("%s %s is already known\n", infoStyle.Render("•"), endpoint)
		case err != nil:
			fail("%v", err)
		default:
			fmt.Printf("%s Added %s\n", successStyle.Render("✓"), endpoint)
		}
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesAddCmd)

	devicesListCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	devicesAddCmd.Flags().String("name", "", "Display name (defaults to the endpoint)")
}
