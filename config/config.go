// Package config loads camera presets from YAML.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-msgcam/camera"
	"github.com/arloliu/go-msgcam/logger"
)

//go:embed presets.yaml
var builtinPresets []byte

// ErrUnknownPreset indicates a preset name missing from the configuration.
var ErrUnknownPreset = errors.New("config: unknown preset")

// Preset describes one camera and its operating defaults.
type Preset struct {
	Name string `yaml:"-"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	RequestedTemp  float64 `yaml:"requested_temp"`  // cooler set-point, C
	DefaultExptime float64 `yaml:"default_exptime"` // seconds
	MaxBytes       int     `yaml:"max_bytes"`       // 0 = camera default
	Transfer       string  `yaml:"transfer"`        // "probe" or "negotiated"

	CCD CCD `yaml:"ccd"` // zero value keeps camera.DefaultCCDInfo

	PollIntervalMs   int `yaml:"poll_interval_ms,omitempty"`
	ReplyTimeoutMs   int `yaml:"reply_timeout_ms,omitempty"`
	ReadoutTimeoutMs int `yaml:"readout_timeout_ms,omitempty"`
	ConnectTimeoutMs int `yaml:"connect_timeout_ms,omitempty"`
}

// CCD is the sensor geometry of a preset.
type CCD struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	PixelSize    float64 `yaml:"pixel_size"` // microns
	BitsPerPixel int     `yaml:"bits_per_pixel"`
}

// Info converts c to the camera representation.
func (c CCD) Info() camera.CCDInfo {
	return camera.CCDInfo{Width: c.Width, Height: c.Height, PixelSize: c.PixelSize, BitsPerPixel: c.BitsPerPixel}
}

// IsZero reports whether no geometry is configured.
func (c CCD) IsZero() bool { return c == CCD{} }

// Telemetry configures header enrichment. Empty fields disable a source.
type Telemetry struct {
	MQTTBroker string `yaml:"mqtt_broker"`
	MQTTPrefix string `yaml:"mqtt_prefix"`
	APIURL     string `yaml:"api_url"`
}

// Config aggregates the presets and shared settings.
type Config struct {
	LogLevel  string
	Presets   map[string]*Preset
	Telemetry Telemetry
}

type fileConfig struct {
	LogLevel  string               `yaml:"log_level"`
	Presets   map[string]yaml.Node `yaml:"presets"`
	Telemetry Telemetry            `yaml:"telemetry"`
}

// Builtin returns the built-in presets.
func Builtin() (*Config, error) {
	cfg := &Config{Presets: map[string]*Preset{}}
	if err := cfg.merge(builtinPresets); err != nil {
		return nil, fmt.Errorf("config: builtin presets: %w", err)
	}

	return cfg, nil
}

// Load reads a YAML file on top of the built-in presets. Fields present in
// the file replace the built-in value; new preset names are added.
func Load(path string) (*Config, error) {
	cfg, err := Builtin()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read config file: %w", err)
	}
	if err := cfg.merge(data); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) merge(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}

	if fc.LogLevel != "" {
		if _, ok := logger.ParseLevel(fc.LogLevel); !ok {
			return fmt.Errorf("unknown log_level %q", fc.LogLevel)
		}
		c.LogLevel = fc.LogLevel
	}
	if fc.Telemetry.MQTTBroker != "" {
		c.Telemetry.MQTTBroker = fc.Telemetry.MQTTBroker
	}
	if fc.Telemetry.MQTTPrefix != "" {
		c.Telemetry.MQTTPrefix = fc.Telemetry.MQTTPrefix
	}
	if fc.Telemetry.APIURL != "" {
		c.Telemetry.APIURL = fc.Telemetry.APIURL
	}

	for name, node := range fc.Presets {
		p := Preset{Port: camera.DefaultPort, Transfer: camera.TransferProbe.String()}
		if base, ok := c.Presets[name]; ok {
			p = *base
		}
		if err := node.Decode(&p); err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
		p.Name = name
		if err := p.Validate(); err != nil {
			return err
		}
		c.Presets[name] = &p
	}

	return nil
}

// Preset returns the named preset.
func (c *Config) Preset(name string) (*Preset, error) {
	p, ok := c.Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPreset, name, c.Names())
	}

	return p, nil
}

// Names returns the sorted preset names.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Level returns the configured log level, InfoLevel when unset.
func (c *Config) Level() logger.Level {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// Validate checks the preset fields.
func (p *Preset) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("config: preset %s: host is required", p.Name)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("config: preset %s: port %d out of range", p.Name, p.Port)
	}
	if p.DefaultExptime <= 0 {
		return fmt.Errorf("config: preset %s: default_exptime must be > 0, got %v", p.Name, p.DefaultExptime)
	}
	if p.RequestedTemp < -100 || p.RequestedTemp > 30 {
		return fmt.Errorf("config: preset %s: requested_temp %v out of range [-100, 30]", p.Name, p.RequestedTemp)
	}
	if p.MaxBytes < 0 {
		return fmt.Errorf("config: preset %s: max_bytes must be >= 0", p.Name)
	}
	if _, err := camera.ParseTransferMode(p.Transfer); err != nil {
		return fmt.Errorf("config: preset %s: %w", p.Name, err)
	}
	if !p.CCD.IsZero() {
		if err := p.CCD.Info().Validate(); err != nil {
			return fmt.Errorf("config: preset %s: %w", p.Name, err)
		}
	}
	for field, ms := range map[string]int{
		"poll_interval_ms":   p.PollIntervalMs,
		"reply_timeout_ms":   p.ReplyTimeoutMs,
		"readout_timeout_ms": p.ReadoutTimeoutMs,
		"connect_timeout_ms": p.ConnectTimeoutMs,
	} {
		if ms < 0 {
			return fmt.Errorf("config: preset %s: %s must be >= 0", p.Name, field)
		}
	}

	return nil
}

// CameraOptions converts the preset to camera options. Zero fields keep the
// camera defaults.
func (p *Preset) CameraOptions() ([]camera.Option, error) {
	mode, err := camera.ParseTransferMode(p.Transfer)
	if err != nil {
		return nil, err
	}

	opts := []camera.Option{camera.WithTransferMode(mode)}
	if p.MaxBytes > 0 {
		opts = append(opts, camera.WithMaxBytes(p.MaxBytes))
	}
	if !p.CCD.IsZero() {
		opts = append(opts, camera.WithCCDInfo(p.CCD.Info()))
	}
	if p.PollIntervalMs > 0 {
		opts = append(opts, camera.WithPollInterval(millis(p.PollIntervalMs)))
	}
	if p.ReplyTimeoutMs > 0 {
		opts = append(opts, camera.WithReplyTimeout(millis(p.ReplyTimeoutMs)))
	}
	if p.ReadoutTimeoutMs > 0 {
		opts = append(opts, camera.WithReadoutTimeout(millis(p.ReadoutTimeoutMs)))
	}
	if p.ConnectTimeoutMs > 0 {
		opts = append(opts, camera.WithConnectTimeout(millis(p.ConnectTimeoutMs)))
	}

	return opts, nil
}

// CameraConfig builds the camera configuration for the preset; extra options
// are applied after the preset's own.
func (p *Preset) CameraConfig(extra ...camera.Option) (*camera.Config, error) {
	opts, err := p.CameraOptions()
	if err != nil {
		return nil, err
	}

	return camera.NewConfig(p.Host, p.Port, append(opts, extra...)...)
}

// Request returns an exposure request using the preset defaults. A
// non-positive exptime selects DefaultExptime.
func (p *Preset) Request(typ camera.ExposureType, exptime float64) camera.ExposureRequest {
	if exptime <= 0 {
		exptime = p.DefaultExptime
	}

	return camera.ExposureRequest{Type: typ, Duration: exptime, MaxBytes: p.MaxBytes}
}

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
