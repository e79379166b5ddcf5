package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/haivivi/chatgear-orchestrator/pkg/simconfig"
	"github.com/spf13/cobra"
)

// configCmd manages gearsim's on-disk configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage gearsim configuration, stored in ~/.gearsim/config.yaml.`,
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage contexts",
	Long:  `Manage gearsim contexts for different broker environments.`,
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := globalConfig.ListContexts()
		if len(names) == 0 {
			fmt.Println("No contexts configured.")
			fmt.Println("\nCreate one with:")
			fmt.Println("  gearsim config context set dev --mqtt=tcp://localhost:1883 --client-id=sim-dev-001")
			return nil
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tCLIENT_ID\tMQTT_ENDPOINT")
		for _, name := range names {
			ctx, _ := globalConfig.GetContext(name)
			current := ""
			if name == globalConfig.CurrentContext {
				current = "*"
			}
			clientID := ctx.ClientID
			if clientID == "" {
				clientID = "(not set)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, clientID, ctx.MQTTEndpoint)
		}
		w.Flush()
		return nil
	},
}

var contextUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch to a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := globalConfig.UseContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Switched to context %q\n", args[0])
		return nil
	},
}

var contextSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a context",
	Long: `Create or update a context with the specified settings.

Examples:
  gearsim config context set dev --mqtt=tcp://localhost:1883 --client-id=sim-dev-001
  gearsim config context set staging --mqtt=tcp://broker.example.com:1883 --username=sim --password=secret`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx, err := globalConfig.GetContext(name)
		if err != nil {
			ctx = simconfig.Default()
		}

		flags := cmd.Flags()
		if flags.Changed("mqtt") {
			ctx.MQTTEndpoint, _ = flags.GetString("mqtt")
		}
		if flags.Changed("client-id") {
			ctx.ClientID, _ = flags.GetString("client-id")
		}
		if flags.Changed("username") {
			ctx.Username, _ = flags.GetString("username")
		}
		if flags.Changed("password") {
			ctx.Password, _ = flags.GetString("password")
		}
		if flags.Changed("downlink-topic") {
			ctx.DownlinkTopic, _ = flags.GetString("downlink-topic")
		}
		if flags.Changed("device-name") {
			ctx.DeviceName, _ = flags.GetString("device-name")
		}
		if flags.Changed("ota-version") {
			ctx.OTAVersion, _ = flags.GetString("ota-version")
		}
		if flags.Changed("mac") {
			ctx.MAC, _ = flags.GetString("mac")
		}
		if flags.Changed("data-dir") {
			ctx.DataDir, _ = flags.GetString("data-dir")
		}

		if err := globalConfig.AddContext(name, ctx); err != nil {
			return err
		}
		fmt.Printf("Context %q saved\n", name)
		return nil
	},
}

var contextDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := globalConfig.DeleteContext(args[0]); err != nil {
			return err
		}
		fmt.Printf("Context %q deleted\n", args[0])
		return nil
	},
}

var contextShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show context details",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		ctx, err := globalConfig.ResolveContext(name)
		if err != nil {
			return err
		}
		if name == "" {
			name = globalConfig.CurrentContext
		}

		fmt.Printf("Context: %s", name)
		if name == globalConfig.CurrentContext {
			fmt.Print(" (current)")
		}
		fmt.Println()
		fmt.Println(strings.Repeat("-", 40))
		fmt.Printf("Client ID:      %s\n", valueOrNotSet(ctx.ClientID))
		fmt.Printf("MQTT Endpoint:  %s\n", ctx.MQTTEndpoint)
		fmt.Printf("Downlink Topic: %s\n", valueOrNotSet(ctx.DownlinkTopic))
		fmt.Printf("Device Name:    %s\n", ctx.DeviceName)
		fmt.Printf("OTA Version:    %s\n", ctx.OTAVersion)
		fmt.Printf("MAC:            %s\n", valueOrNotSet(ctx.MAC))
		fmt.Printf("Data Dir:       %s\n", valueOrNotSet(ctx.DataDir))
		fmt.Println()
		fmt.Printf("Config file: %s\n", globalConfig.Path())
		return nil
	},
}

func valueOrNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func init() {
	configCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextListCmd)
	contextCmd.AddCommand(contextUseCmd)
	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextDeleteCmd)
	contextCmd.AddCommand(contextShowCmd)

	contextSetCmd.Flags().String("mqtt", "", "MQTT broker endpoint")
	contextSetCmd.Flags().String("client-id", "", "MQTT client ID / device identity")
	contextSetCmd.Flags().String("username", "", "MQTT username")
	contextSetCmd.Flags().String("password", "", "MQTT password")
	contextSetCmd.Flags().String("downlink-topic", "", "override downlink topic")
	contextSetCmd.Flags().String("device-name", "", "device name reported in telemetry")
	contextSetCmd.Flags().String("ota-version", "", "OTA version reported in telemetry")
	contextSetCmd.Flags().String("mac", "", "MAC address reported in telemetry")
	contextSetCmd.Flags().String("data-dir", "", "badger data directory (empty runs in-memory)")
}
