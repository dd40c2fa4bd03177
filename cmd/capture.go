/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	wsserial "github.com/allbin/go-wsserial"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <endpoint> <output-file>",
	Short: "Capture device data to a file",
	Long: `Capture incoming serial data from a device to a file for later parsing.

Every binary frame the proxy sends is appended to the output file as is.
Runs until interrupted (Ctrl+C) or until the device closes the connection.

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data.

Example usage:
  wsserial capture rock64.local data.log
  wsserial capture rock64.local capture.log --console`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		showConsole, _ := cmd.Flags().GetBool("console")

		if err := runCapture(cmd.Context(), args[0], args[1], showConsole); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().BoolP("console", "c", false, "Display incoming data on console while capturing")
}

// captureSink appends data events to w. It runs on the channel read loop so
// it only does the write.
type captureSink struct {
	mu      sync.Mutex
	file    *os.File
	console bool
	written int64
	err     error
}

func (s *captureSink) handle(e wsserial.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	n, err := s.file.Write(e.Data)
	s.written += int64(n)
	if err != nil {
		s.err = fmt.Errorf("write error: %w", err)
		return
	}
	if s.console {
		os.Stdout.Write(e.Data)
	}
}

func (s *captureSink) result() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.err
}

func runCapture(ctx context.Context, endpoint, outputPath string, showConsole bool) error {
	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer file.Close()

	m, _, err := newManager(false)
	if err != nil {
		return err
	}

	sink := &captureSink{file: file, console: showConsole}
	m.Subscribe(sink.handle, wsserial.EventData)

	lost := make(chan struct{})
	var once sync.Once
	m.Subscribe(func(wsserial.Event) {
		once.Do(func() { close(lost) })
	}, wsserial.EventDisconnected)

	if err := m.SelectDevice(ctx, endpoint); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", endpoint, outputPath)
	if showConsole {
		fmt.Fprintf(os.Stderr, "Console display enabled\n")
	}
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

	startTime := time.Now()
	select {
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, shutting down...\n")
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(closeCtx)
	case <-lost:
		fmt.Fprintf(os.Stderr, "\nDevice closed the connection\n")
	}

	written, err := sink.result()
	fmt.Fprintf(os.Stderr, "Capture complete: %d bytes written in %v\n", written, time.Since(startTime).Round(time.Millisecond))
	return err
}
