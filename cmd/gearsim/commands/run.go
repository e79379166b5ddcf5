package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haivivi/chatgear-orchestrator/pkg/audio/codec/opus"
	"github.com/haivivi/chatgear-orchestrator/pkg/audiopipeline"
	"github.com/haivivi/chatgear-orchestrator/pkg/intent"
	"github.com/haivivi/chatgear-orchestrator/pkg/kv"
	"github.com/haivivi/chatgear-orchestrator/pkg/logging"
	"github.com/haivivi/chatgear-orchestrator/pkg/protocol"
	"github.com/haivivi/chatgear-orchestrator/pkg/scenario"
	"github.com/haivivi/chatgear-orchestrator/pkg/simconfig"

	"github.com/haivivi/chatgear-orchestrator/internal/orchestrator"
)

var flagScenarioPath string

func init() {
	rootCmd.Flags().StringVar(&flagScenarioPath, "scenario", "", "run a scripted scenario file (YAML or JSON) instead of reading stdin")
}

func newOpusEncoder(sampleRate, frameMs int) (audiopipeline.Encoder, error) {
	return opus.NewEncoder(sampleRate, frameMs)
}

func newOpusDecoder(sampleRate, frameMs int) (audiopipeline.Decoder, error) {
	return opus.NewDecoder(sampleRate, frameMs)
}

// simDisplay/simWakeWord/simPrelude/simReboot/simNotify/simTelemetrySource
// are terminal stand-ins for the board-specific hooks the orchestrator
// drives through its narrow interfaces (internal/orchestrator's hooks.go,
// preemption.go and telemetry.go, and pkg/downlink's Rebooter/Notifier) —
// printing what a real board would render or actuate.
type simDisplay struct{}

func (simDisplay) SetStatus(status string) { fmt.Printf("[display] status: %s\n", status) }
func (simDisplay) ClearChat()              { fmt.Println("[display] chat transcript cleared") }

type simWakeWord struct{}

func (simWakeWord) Start() { fmt.Println("[wakeword] listening for wake word") }
func (simWakeWord) Stop()  { fmt.Println("[wakeword] stopped") }

type simPrelude struct{}

func (simPrelude) PlayPrelude(alarmName string) error {
	fmt.Printf("[alarm] prelude chime for %q\n", alarmName)
	return nil
}
func (simPrelude) PlayFallback() error {
	fmt.Println("[alarm] fallback chime")
	return nil
}

type simReboot struct{}

func (simReboot) Reboot(delayMS int) { fmt.Printf("[system] reboot requested in %dms\n", delayMS) }

type simNotify struct{}

func (simNotify) Notify(title, body string) { fmt.Printf("[notify] %s: %s\n", title, body) }

// simTelemetrySource reports fixed, plausible values; a real board would
// read these off its battery fuel gauge, heap allocator, and WiFi driver.
type simTelemetrySource struct{}

func (simTelemetrySource) Battery() (level int, charging, discharging, ok bool) {
	return 87, false, true, true
}
func (simTelemetrySource) Memory() (freeInternal, minFreeInternal uint64) {
	return 180_000, 140_000
}
func (simTelemetrySource) WifiRSSI() (rssi int, ok bool) { return -52, true }

// runSimulator is rootCmd's default action: it assembles one Orchestrator
// against a real MQTT broker and drives it from either stdin commands or a
// scripted scenario file, mirroring cmd/geartest's run command's
// context-resolution-then-construct-then-wait-for-signal shape.
func runSimulator(cmd *cobra.Command, args []string) error {
	cfgCtx := resolveContext()
	if cfgCtx.ClientID == "" {
		cfgCtx.ClientID = "gearsim-" + uuid.NewString()[:8]
	}

	logger := logging.Default("gearsim")

	transport := protocol.NewMQTTTransport(protocol.MQTTTransportOptions{
		Config: protocol.MQTTConfig{
			Endpoint:      cfgCtx.MQTTEndpoint,
			ClientID:      cfgCtx.ClientID,
			Username:      cfgCtx.Username,
			Password:      cfgCtx.Password,
			DownlinkTopic: cfgCtx.DownlinkTopic,
		},
		Logger: logger,
	})

	audio, err := audiopipeline.New(audiopipeline.Options{
		Logger:     logger,
		NewEncoder: newOpusEncoder,
		NewDecoder: newOpusDecoder,
		Now:        time.Now,
	})
	if err != nil {
		return fmt.Errorf("gearsim: audio pipeline: %w", err)
	}

	store, closeStore, err := openStore(cfgCtx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch, err := orchestrator.New(ctx, orchestrator.Options{
		Transport:       transport,
		Audio:           audio,
		KV:              store,
		Display:         simDisplay{},
		WakeWord:        simWakeWord{},
		Prelude:         simPrelude{},
		Reboot:          simReboot{},
		Notify:          simNotify{},
		TelemetrySource: simTelemetrySource{},
		DeviceName:      cfgCtx.DeviceName,
		OTAVersion:      cfgCtx.OTAVersion,
		MAC:             cfgCtx.MAC,
		ClientID:        cfgCtx.ClientID,
		Logger:          logger,
		Now:             time.Now,
	})
	if err != nil {
		return fmt.Errorf("gearsim: assemble orchestrator: %w", err)
	}

	if _, err := transport.OpenAudioChannel(ctx); err != nil {
		return fmt.Errorf("gearsim: connect to broker: %w", err)
	}

	go orch.Run(ctx)
	defer orch.Stop()

	// A real board reaches Idle once its boot sequence (display init, WiFi
	// association, time sync) finishes; the simulator has none of that, so
	// it boots through Configuring as soon as the broker connection is up.
	orch.Boot()

	fmt.Println(renderStatusFrame(
		cfgCtx.DeviceName, orch.Device().State().String(),
		map[string][]string{"Session": {"client_id: " + cfgCtx.ClientID, "broker: " + cfgCtx.MQTTEndpoint}},
		[]string{"Session"},
		"type 'help' for console commands, Ctrl+C to exit",
	))

	detector := intent.New()

	if flagScenarioPath != "" {
		return runScenario(ctx, orch, detector, flagScenarioPath)
	}
	return runConsole(ctx, orch, detector)
}

func openStore(cfgCtx *simconfig.Context, logger logging.Logger) (kv.Store, func(), error) {
	if cfgCtx.DataDir == "" {
		return kv.NewMemory(&kv.Options{Logger: logger}), func() {}, nil
	}
	db, err := kv.NewBadger(kv.BadgerOptions{
		Dir:     cfgCtx.DataDir,
		Options: &kv.Options{Logger: logger},
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gearsim: open badger store at %s: %w", cfgCtx.DataDir, err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			logger.WarnPrintf("gearsim: close badger store: %v", err)
		}
	}, nil
}

// runConsole reads newline-delimited commands from stdin until EOF or an
// interrupt signal:
//
//	chat                 toggle the chat button
//	say <text>            feed <text> through the local intent detector
//	status                reprint the status frame
//	quit                  exit
func runConsole(ctx context.Context, orch *orchestrator.Orchestrator, detector *intent.Detector) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("commands: chat | say <text> | status | help | quit")
	for {
		select {
		case <-sigCh:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !dispatchConsoleLine(ctx, orch, detector, line) {
				return nil
			}
		}
	}
}

func dispatchConsoleLine(ctx context.Context, orch *orchestrator.Orchestrator, detector *intent.Detector, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true
	case line == "quit" || line == "exit":
		return false
	case line == "help":
		fmt.Println("commands: chat | say <text> | status | help | quit")
	case line == "chat":
		orch.ToggleChat(ctx)
	case line == "status":
		fmt.Printf("device state: %s\n", orch.Device().State())
	case strings.HasPrefix(line, "say "):
		text := strings.TrimPrefix(line, "say ")
		res, matched := detector.DetectIntent(text)
		if !matched {
			fmt.Println("no intent matched")
			return true
		}
		if err := orch.Intents().Dispatch(ctx, res); err != nil {
			fmt.Printf("intent dispatch failed: %v\n", err)
		}
	default:
		fmt.Printf("unrecognized command: %q\n", line)
	}
	return true
}

// runScenario replays a scripted sequence of the same actions runConsole
// accepts interactively, waiting After between each step.
func runScenario(ctx context.Context, orch *orchestrator.Orchestrator, detector *intent.Detector, path string) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for i, step := range sc.Steps {
		timer := time.NewTimer(step.After)
		select {
		case <-sigCh:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		switch step.Action {
		case "toggle_chat":
			orch.ToggleChat(ctx)
		case "say":
			res, matched := detector.DetectIntent(step.Text)
			if !matched {
				fmt.Printf("scenario step %d: no intent matched for %q\n", i, step.Text)
				continue
			}
			if err := orch.Intents().Dispatch(ctx, res); err != nil {
				fmt.Printf("scenario step %d: intent dispatch failed: %v\n", i, err)
			}
		case "downlink":
			orch.HandleDownlinkJSON(ctx, step.Payload)
		default:
			fmt.Printf("scenario step %d: unrecognized action %q\n", i, step.Action)
		}
	}

	fmt.Println("scenario complete")
	return nil
}
