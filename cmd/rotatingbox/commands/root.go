package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/rotatingbox/internal/config"
	"github.com/bryanchriswhite/rotatingbox/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "rotatingbox",
		Short: "rotatingbox - a camera-textured cube paced by a request/reply peer",
		Long: `rotatingbox draws a rotating cube textured with the latest camera frame.

Every frame sends one request to a reply server and waits for the answer
before drawing, so the peer paces the animation. Without a camera the cube
shows a "No Webcam Detected" placeholder.

Frames are served as an MJPEG stream, optionally shown in an X11 window,
and the loop is observable through a small HTTP status API.`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/rotatingbox/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("endpoint", "", "reply server endpoint, e.g. tcp://localhost:5555")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("messaging.endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix("ROTATINGBOX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// overridable keys: flags and ROTATINGBOX_* variables win over the file
var overridable = []string{
	"log_level",
	"messaging.endpoint",
	"messaging.exchange_timeout",
	"capture.backend",
	"capture.device",
	"capture.url",
	"frame.fps",
	"server.port",
	"display.window",
}

// loadConfig reads the config file, applies flag and environment overrides
// without persisting them, validates, and initializes logging
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, key := range overridable {
		v := viper.GetString(key)
		if !viper.IsSet(key) || v == "" {
			continue
		}
		if err := configMgr.Set(key, v); err != nil {
			return nil, nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	cfg := configMgr.Get()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	return configMgr, cfg, nil
}

// bindFlag lets a command flag override a config key. Commands bind when
// they run, since several share a key.
func bindFlag(cmd *cobra.Command, key, flag string) {
	viper.BindPFlag(key, cmd.Flags().Lookup(flag))
}
