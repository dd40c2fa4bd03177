/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <endpoint> [data]",
	Short: "Send data to a device",
	Long: `Send data to the serial port of a device and disconnect.

Data can be provided as:
- Command line argument: send rock64.local "AT+GMR"
- From stdin (pipe): echo "test data" | wsserial send rock64.local
- Interactive mode: wsserial send rock64.local (prompts for input)

The persisted baud rate is sent to the device before the data.

Example usage:
  wsserial send rock64.local "AT+GMR" --newline
  wsserial send 10.0.0.12 "0206000300000099" --hex
  echo "test" | wsserial send rock64.local`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		endpoint := args[0]

		var data string
		if len(args) == 2 {
			data = args[1]
		} else {
			stat, err := os.Stdin.Stat()
			if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
				data = promptForData()
			} else {
				stdinData, err := io.ReadAll(os.Stdin)
				if err != nil {
					fail("Error reading from stdin: %v", err)
				}
				data = strings.TrimRight(string(stdinData), "\r\n")
			}
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		payload := []byte(data)
		if hexMode {
			var err error
			if payload, err = parseHexBytes(data); err != nil {
				fail("Invalid hex data: %v", err)
			}
		} else if addNewline {
			payload = append(payload, '\n')
		}

		if err := sendData(cmd.Context(), endpoint, payload, hexMode, timeout); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().DurationP("timeout", "t", 10*time.Second, "Timeout for connecting and sending")
}

func promptForData() string {
	fmt.Print(infoStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

// sendData writes payload as raw bytes, or as encoded text unless hex is set
func sendData(parent context.Context, endpoint string, payload []byte, raw bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	fmt.Printf("%s Connecting to %s...\n", infoStyle.Render("⚡"), endpoint)
	m, done, err := openDevice(ctx, endpoint)
	if err != nil {
		return err
	}
	defer done()
	fmt.Printf("%s Connected at %d baud\n", successStyle.Render("✓"), m.Baud())

	fmt.Printf("%s Sending %d bytes...\n", infoStyle.Render("📤"), len(payload))
	if raw {
		err = m.Write(ctx, payload)
	} else {
		err = m.WriteString(ctx, string(payload))
	}
	if err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}

	fmt.Printf("%s Sent successfully\n", successStyle.Render("✓"))
	return nil
}
