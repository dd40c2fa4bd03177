/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	wsserial "github.com/allbin/go-wsserial"
	"github.com/allbin/go-wsserial/internal/bridge"
)

// bridgeCmd represents the bridge command
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve a local serial port over a websocket",
	Long: `Run the device side proxy: a websocket server that forwards binary frames
to a local serial port and applies "baud:<N>" and "dtr:<0|1>" commands.

One client is served at a time. Clients connect with the wss scheme unless
they are started with --scheme ws, so pass --cert and --key or tell clients
to use plain websockets.

Example usage:
  wsserial bridge --device /dev/ttyUSB0
  wsserial bridge --device /dev/ttyAMA0 --listen :444 --cert cert.pem --key key.pem
  wsserial bridge --device /dev/ttyUSB0 --metrics`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		device, _ := cmd.Flags().GetString("device")
		listen, _ := cmd.Flags().GetString("listen")
		baud, _ := cmd.Flags().GetInt("baud")
		cert, _ := cmd.Flags().GetString("cert")
		key, _ := cmd.Flags().GetString("key")
		withMetrics, _ := cmd.Flags().GetBool("metrics")

		log, err := newLogger(false)
		if err != nil {
			fail("%v", err)
		}

		if (cert == "") != (key == "") {
			fail("--cert and --key must be given together")
		}

		if err := runBridge(cmd.Context(), log, device, listen, baud, expandPath(cert), expandPath(key), withMetrics); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().StringP("device", "d", "", "Serial device to serve")
	bridgeCmd.Flags().String("listen", fmt.Sprintf(":%d", wsserial.DefaultPort), "Address to listen on")
	bridgeCmd.Flags().IntP("baud", "b", bridge.DefaultBaudRate, "Baud rate used until the client sends one")
	bridgeCmd.Flags().String("cert", "", "TLS certificate file")
	bridgeCmd.Flags().String("key", "", "TLS key file")
	bridgeCmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	_ = bridgeCmd.MarkFlagRequired("device")
}

func runBridge(ctx context.Context, log *logrus.Logger, device, listen string, baud int, cert, key string, withMetrics bool) error {
	reg := prometheus.NewRegistry()
	metrics, err := wsserial.NewMetrics(reg, "bridge")
	if err != nil {
		return err
	}

	b, err := bridge.New(bridge.Config{
		Device:   device,
		BaudRate: baud,
		Logger:   log,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", b)
	if withMetrics {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{
		"device": device,
		"listen": listen,
		"tls":    cert != "",
	}).Info("bridge listening")

	if cert != "" {
		err = srv.ListenAndServeTLS(cert, key)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		log.Info("bridge stopped")
		return nil
	}
	return err
}
