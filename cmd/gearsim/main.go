// Command gearsim simulates a chatgear device end to end against a real
// MQTT broker, for exercising server-side chatgear implementations without
// physical hardware.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/chatgear-orchestrator/cmd/gearsim/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
