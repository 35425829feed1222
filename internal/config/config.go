// Package config loads settings for the check-in client.
//
// Settings come from an optional YAML file, then from CHECKIN_* environment
// variables, then from built-in defaults for anything still empty. ${VAR}
// placeholders in the file are replaced with the environment value before
// parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Elizabethomito/geocheckin/internal/checkin"
	"github.com/Elizabethomito/geocheckin/internal/geo"
	"github.com/Elizabethomito/geocheckin/internal/locate"
)

// DefaultPath is read when no path is given and the file exists.
const DefaultPath = "checkin.yaml"

type Config struct {
	API struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"api"`

	Device struct {
		GPSDAddr string        `yaml:"gpsd_addr"`
		Timeout  time.Duration `yaml:"timeout"`
		// Static pins the device position of a fixed kiosk. When set, gpsd
		// is not consulted.
		Static *StaticPosition `yaml:"static"`
	} `yaml:"device"`

	Network struct {
		PrimaryURL   string `yaml:"primary_url"`
		AlternateURL string `yaml:"alternate_url"`
	} `yaml:"network"`

	Geocoder struct {
		URL       string `yaml:"url"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"geocoder"`

	// Sources is the resolve order, e.g. [device, network].
	Sources        []string `yaml:"sources"`
	LowTrustMeters float64  `yaml:"low_trust_meters"`
	LogLevel       string   `yaml:"log_level"`
}

// StaticPosition is a fixed device position.
type StaticPosition struct {
	Latitude       float64  `yaml:"latitude"`
	Longitude      float64  `yaml:"longitude"`
	AccuracyMeters *float64 `yaml:"accuracy_meters"`
}

// Positioner returns the device Positioner these settings select.
func (c *Config) Positioner() locate.Positioner {
	if st := c.Device.Static; st != nil {
		return locate.StaticPositioner{
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			Accuracy:  st.AccuracyMeters,
		}
	}
	return &locate.GPSDPositioner{Addr: c.Device.GPSDAddr}
}

// Load reads path (or DefaultPath if it exists), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv replaces ${NAME} with the value of NAME. Placeholders for unset
// variables are left as they are.
func expandEnv(content string) string {
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		content = strings.ReplaceAll(content, "${"+pair[0]+"}", pair[1])
	}
	return content
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.API.URL, "CHECKIN_API_URL")
	setString(&c.API.Token, "CHECKIN_TOKEN")
	setString(&c.Device.GPSDAddr, "CHECKIN_GPSD_ADDR")
	setString(&c.Network.PrimaryURL, "CHECKIN_IP_PRIMARY_URL")
	setString(&c.Network.AlternateURL, "CHECKIN_IP_ALTERNATE_URL")
	setString(&c.Geocoder.URL, "CHECKIN_GEOCODER_URL")
	setString(&c.Geocoder.UserAgent, "CHECKIN_USER_AGENT")
	setString(&c.LogLevel, "CHECKIN_LOG_LEVEL")

	if v := os.Getenv("CHECKIN_SOURCES"); v != "" {
		c.Sources = strings.Split(v, ",")
	}
	if v := os.Getenv("CHECKIN_DEVICE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CHECKIN_DEVICE_TIMEOUT value: %w", err)
		}
		c.Device.Timeout = d
	}
	if v := os.Getenv("CHECKIN_LOW_TRUST_METERS"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CHECKIN_LOW_TRUST_METERS value: %w", err)
		}
		c.LowTrustMeters = m
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.URL == "" {
		c.API.URL = "http://localhost:8080/api"
	}
	if c.Device.GPSDAddr == "" {
		c.Device.GPSDAddr = locate.DefaultGPSDAddr
	}
	if c.Device.Timeout <= 0 {
		c.Device.Timeout = locate.DefaultDeviceTimeout
	}
	if c.Network.PrimaryURL == "" {
		c.Network.PrimaryURL = locate.DefaultIPAPICoURL
	}
	if c.Network.AlternateURL == "" {
		c.Network.AlternateURL = locate.DefaultIPAPIComURL
	}
	if c.Geocoder.URL == "" {
		c.Geocoder.URL = locate.DefaultGeocoderURL
	}
	if c.Geocoder.UserAgent == "" {
		c.Geocoder.UserAgent = locate.DefaultUserAgent
	}
	if c.LowTrustMeters <= 0 {
		c.LowTrustMeters = checkin.LowTrustAccuracyMeters
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if st := c.Device.Static; st != nil {
		if _, _, err := geo.Validate(st.Latitude, st.Longitude); err != nil {
			return fmt.Errorf("config device.static: %w", err)
		}
		if st.AccuracyMeters != nil && *st.AccuracyMeters < 0 {
			return errors.New("config device.static: accuracy_meters cannot be negative")
		}
	}
	if _, err := c.ResolveOrder(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// ResolveOrder parses Sources. Empty means locate.DefaultOrder.
func (c *Config) ResolveOrder() ([]geo.Source, error) {
	if len(c.Sources) == 0 {
		return locate.DefaultOrder, nil
	}
	order := make([]geo.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		src, err := geo.ParseSource(s)
		if err != nil {
			return nil, fmt.Errorf("config sources: %w", err)
		}
		order = append(order, src)
	}
	return order, nil
}

// Level parses LogLevel ("debug", "info", "warn" or "error").
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config log_level: %w", err)
	}
	return l, nil
}
