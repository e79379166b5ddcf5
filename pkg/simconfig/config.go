// Package simconfig persists gearsim's device-identity and broker settings
// across invocations, grounded on the teacher CLI's pkg/cli.Config: the same
// multi-context (dev/staging/prod) shape, trimmed from generic per-service
// API credentials down to the one thing a simulated chatgear device actually
// needs to remember between runs.
package simconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name under $HOME.
	DefaultBaseDir = ".gearsim"
	// DefaultConfigFile is the default configuration filename.
	DefaultConfigFile = "config.yaml"
)

// Config is the on-disk configuration root: a set of named contexts plus
// which one is active.
type Config struct {
	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context holds everything one simulated device needs: its identity (for
// the telemetry heartbeat and the protocol handshake) and the MQTT broker
// it dials into (pkg/protocol.MQTTConfig's fields, plus where the device's
// alarm/IoT state persists on disk).
type Context struct {
	Name string `yaml:"name"`

	MQTTEndpoint  string `yaml:"mqtt_endpoint,omitempty"`
	ClientID      string `yaml:"client_id,omitempty"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	DownlinkTopic string `yaml:"downlink_topic,omitempty"`

	DeviceName string `yaml:"device_name,omitempty"`
	OTAVersion string `yaml:"ota_version,omitempty"`
	MAC        string `yaml:"mac,omitempty"`

	// DataDir holds the Badger-backed alarm/state store for this context.
	// Empty means run with an in-memory store (nothing survives restart).
	DataDir string `yaml:"data_dir,omitempty"`
}

// Load loads or creates the configuration file at customPath, falling back
// to ~/.gearsim/config.yaml when customPath is empty.
func Load(customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("simconfig: home directory: %w", err)
		}
		configPath = filepath.Join(home, DefaultBaseDir, DefaultConfigFile)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("simconfig: create config directory: %w", err)
	}

	cfg := &Config{Contexts: make(map[string]*Context), configPath: configPath}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("simconfig: read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("simconfig: parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	cfg.configPath = configPath
	return cfg, nil
}

// Save writes the configuration back to its file.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("simconfig: marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("simconfig: write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string { return c.configPath }

// AddContext adds or replaces a context and saves.
func (c *Config) AddContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context and saves.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("simconfig: context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the active context and saves.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("simconfig: context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a named context.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("simconfig: context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one when name is
// empty.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext == "" {
		return nil, fmt.Errorf("simconfig: no current context set")
	}
	return c.GetContext(c.CurrentContext)
}

// ListContexts returns all context names.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	return names
}

// Default returns a new Context with values sufficient to dial a local
// broker, for a first run with no saved context.
func Default() *Context {
	return &Context{
		MQTTEndpoint: "tcp://localhost:1883",
		DeviceName:   "gearsim",
		OTAVersion:   "0.0.0-sim",
	}
}
