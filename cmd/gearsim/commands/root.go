package commands

import (
	"fmt"
	"os"

	"github.com/haivivi/chatgear-orchestrator/pkg/simconfig"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	contextName  string
	globalConfig *simconfig.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gearsim",
	Short: "Chatgear device simulator",
	Long: `gearsim simulates one chatgear device end to end: it dials a
real MQTT broker with pkg/protocol.MQTTTransport, runs the same Device
state machine, Alarm Pre-emption Protocol, and Downlink Handler a real
board would, and drives them from a terminal instead of a microphone.

Configuration is stored in ~/.gearsim/config.yaml and supports multiple
contexts, so you can keep separate dev/staging/prod broker settings and
switch between them with 'gearsim config context use <name>'.`,
	RunE: runSimulator,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.gearsim/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context to use (default is the current context)")

	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	var err error
	globalConfig, err = simconfig.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gearsim: loading config: %v\n", err)
		os.Exit(1)
	}
}

// resolveContext returns the context named by --context, or the current
// context, or a built-in default when neither is configured.
func resolveContext() *simconfig.Context {
	ctx, err := globalConfig.ResolveContext(contextName)
	if err != nil {
		return simconfig.Default()
	}
	return ctx
}
