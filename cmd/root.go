/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	wsserial "github.com/allbin/go-wsserial"
)

const configDir = "~/.config/wsserial"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wsserial",
	Short: "Talk to serial devices behind a websocket proxy",
	Long: `wsserial reaches the serial port of an embedded device through the
websocket proxy running on it. Data travels as binary frames, baud rate and
DTR changes as text commands.

Known devices and the last baud rate are kept in a state file so that the
next session picks up where the previous one left off.

Settings are read from flags, WSSERIAL_* environment variables and
~/.config/wsserial/config.yaml, in that order.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is "+configDir+"/config.yaml)")
	pf.String("state-file", configDir+"/state.json", "File holding known devices and the baud rate")
	pf.IntP("port", "p", wsserial.DefaultPort, "Proxy port on the device")
	pf.String("scheme", "wss", "Websocket scheme: wss or ws")
	pf.Bool("insecure", false, "Skip TLS certificate verification")
	pf.String("encoding", "utf-8", "Text encoding used for typed and received text")
	pf.Duration("handshake-timeout", 10*time.Second, "Websocket handshake timeout, 0 waits forever")
	pf.Bool("trace", false, "Hex dump every frame at debug level")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-file", "", "Write logs to a rotated file instead of stderr")

	_ = viper.BindPFlags(pf)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(expandPath(cfgFile))
	} else {
		viper.AddConfigPath(expandPath(configDir))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("WSSERIAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

// newLogger honors --log-level and --log-file. Without a log file the
// terminal UI gets no logs since they would garble the screen.
func newLogger(tui bool) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	switch path := viper.GetString("log-file"); {
	case path != "":
		path = expandPath(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		log.SetOutput(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
		log.SetFormatter(&logrus.JSONFormatter{})
	case tui:
		log.SetOutput(io.Discard)
	default:
		log.SetOutput(os.Stderr)
	}
	return log, nil
}

// newManager builds a manager from the global settings
func newManager(tui bool, extra ...wsserial.Option) (*wsserial.Manager, *logrus.Logger, error) {
	log, err := newLogger(tui)
	if err != nil {
		return nil, nil, err
	}

	store, err := wsserial.NewFileStore(expandPath(viper.GetString("state-file")))
	if err != nil {
		return nil, nil, err
	}

	opts := []wsserial.Option{
		wsserial.WithLogger(log),
		wsserial.WithStore(store),
		wsserial.WithPort(viper.GetInt("port")),
		wsserial.WithScheme(viper.GetString("scheme")),
		wsserial.WithEncoding(viper.GetString("encoding")),
		wsserial.WithTrace(viper.GetBool("trace")),
		wsserial.WithHandshakeTimeout(viper.GetDuration("handshake-timeout")),
	}
	if viper.GetBool("insecure") {
		opts = append(opts, wsserial.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}

	m, err := wsserial.New(append(opts, extra...)...)
	if err != nil {
		return nil, nil, err
	}
	return m, log, nil
}

// openDevice selects endpoint and waits for the connection. The returned
// function disconnects.
func openDevice(ctx context.Context, endpoint string) (*wsserial.Manager, func(), error) {
	m, _, err := newManager(false)
	if err != nil {
		return nil, nil, err
	}
	if err := m.SelectDevice(ctx, endpoint); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	}, nil
}
