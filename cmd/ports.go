/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"

	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"

	"github.com/allbin/go-wsserial/internal/bridge"
)

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List local serial ports",
	Long: `List the serial ports on this machine, typically to pick the device
for 'wsserial bridge'.

This command scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := bridge.ListPorts()
		if err != nil {
			fail("Error listing ports: %v", err)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		ports = bridge.FilterPorts(ports, filterType)
		if len(ports) == 0 {
			if filterType != "" {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		if !tableFormat {
			for _, p := range ports {
				fmt.Println(p.Name)
			}
			return
		}

		rows := make([]table.Row, 0, len(ports))
		for _, p := range ports {
			usb := ""
			if p.IsUSB {
				usb = fmt.Sprintf("%s:%s", p.VID, p.PID)
			}
			rows = append(rows, table.NewRow(table.RowData{
				"port":   p.Name,
				"type":   p.Type,
				"usb":    usb,
				"serial": p.SerialNumber,
			}))
		}

		fmt.Printf("Found %d serial port(s):\n", len(ports))
		fmt.Println(renderTable([]table.Column{
			table.NewColumn("port", "Port", 18),
			table.NewColumn("type", "Type", 18),
			table.NewColumn("usb", "VID:PID", 11),
			table.NewColumn("serial", "Serial", 20),
		}, rows))
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)

	portsCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	portsCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}
