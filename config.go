package smokerlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

var ErrUnknownOption = errors.New("unknown option")

const (
	OptSource          = "data/source"
	OptMode            = "data/mode"
	OptTimeout         = "data/timeout"
	OptReadInterval    = "logger/read_interval"
	OptCacheBufferSize = "logger/cache_buffer_size"
	OptPrefix          = "logger/prefix"
	OptSnapshot        = "store/snapshot"
	OptPlotAddr        = "plot/addr"
	OptColors          = "plot/colors"
	OptTempUnits       = "plot/tempunits"
	OptLogFilename     = "app/log/filename"
	OptLogLevel        = "app/log/level"
)

const (
	ModeHTML = "html"
	ModeJSON = "json"
)

// Config holds every named option. Startup flags fill it before the app is
// built; `set` changes it afterwards.
type Config struct {
	Source          string
	Mode            string
	Timeout         time.Duration
	ReadInterval    time.Duration
	CacheBufferSize int
	Prefix          string
	Snapshot        string
	PlotAddr        string
	Colors          []string
	TempUnits       string
	LogFilename     string
	LogLevel        logrus.Level
}

func DefaultConfig() *Config {
	return &Config{
		Source:          "192.168.1.3",
		Mode:            ModeHTML,
		Timeout:         DefaultFetchTimeout,
		ReadInterval:    DefaultReadInterval,
		CacheBufferSize: DefaultCacheBufferSize,
		Prefix:          "default",
		Snapshot:        ".SmokerLog.snapshot",
		PlotAddr:        "127.0.0.1:5274",
		Colors:          []string{"red", "blue", "green", "yellow"},
		TempUnits:       "F",
		LogFilename:     "SmokerLog.log",
		LogLevel:        logrus.InfoLevel,
	}
}

// Option binds a name to one field of a Config.
type Option struct {
	Name string
	Help string
	// Runtime changes take effect immediately; the others are only read at
	// startup.
	Runtime bool

	get func() string
	set func(string) error
}

func (o Option) Get() string {
	return o.get()
}

func (c *Config) Options() []Option {
	return []Option{
		{
			Name: OptSource, Help: "appliance host",
			get: func() string { return c.Source },
			set: func(v string) error {
				if strings.TrimSpace(v) == "" {
					return fmt.Errorf("host must not be empty")
				}
				c.Source = strings.TrimSpace(v)
				return nil
			},
		},
		{
			Name: OptMode, Help: "status page format, html or json",
			get: func() string { return c.Mode },
			set: func(v string) error {
				v = strings.ToLower(strings.TrimSpace(v))
				if v != ModeHTML && v != ModeJSON {
					return fmt.Errorf("mode must be %q or %q, got %q", ModeHTML, ModeJSON, v)
				}
				c.Mode = v
				return nil
			},
		},
		{
			Name: OptTimeout, Help: "fetch timeout", Runtime: true,
			get: func() string { return c.Timeout.String() },
			set: func(v string) error { return setDuration(&c.Timeout, v) },
		},
		{
			Name: OptReadInterval, Help: "time between polls", Runtime: true,
			get: func() string { return c.ReadInterval.String() },
			set: func(v string) error { return setDuration(&c.ReadInterval, v) },
		},
		{
			Name: OptCacheBufferSize, Help: "readings buffered before writing to file", Runtime: true,
			get: func() string { return strconv.Itoa(c.CacheBufferSize) },
			set: func(v string) error {
				n, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil {
					return err
				}
				if n < 1 {
					return fmt.Errorf("must be at least 1, got %d", n)
				}
				c.CacheBufferSize = n
				return nil
			},
		},
		{
			Name: OptPrefix, Help: "output filename prefix", Runtime: true,
			get: func() string { return c.Prefix },
			set: func(v string) error {
				if v == "" {
					return fmt.Errorf("prefix must not be empty")
				}
				c.Prefix = v
				return nil
			},
		},
		{
			Name: OptSnapshot, Help: "snapshot file, empty disables", Runtime: true,
			get: func() string { return c.Snapshot },
			set: func(v string) error { c.Snapshot = v; return nil },
		},
		{
			Name: OptPlotAddr, Help: "plot server listen address",
			get: func() string { return c.PlotAddr },
			set: func(v string) error { c.PlotAddr = v; return nil },
		},
		{
			Name: OptColors, Help: "comma separated sensor colors", Runtime: true,
			get: func() string { return strings.Join(c.Colors, ",") },
			set: func(v string) error {
				colors := Filter(strings.Split(v, ","), func(s string) bool { return strings.TrimSpace(s) != "" })
				if len(colors) == 0 {
					return fmt.Errorf("at least one color is required")
				}
				for i := range colors {
					colors[i] = strings.TrimSpace(colors[i])
				}
				c.Colors = colors
				return nil
			},
		},
		{
			Name: OptTempUnits, Help: "temperature unit label", Runtime: true,
			get: func() string { return c.TempUnits },
			set: func(v string) error { c.TempUnits = v; return nil },
		},
		{
			Name: OptLogFilename, Help: "application log file",
			get: func() string { return c.LogFilename },
			set: func(v string) error { c.LogFilename = v; return nil },
		},
		{
			Name: OptLogLevel, Help: "application log level", Runtime: true,
			get: func() string { return c.LogLevel.String() },
			set: func(v string) error {
				level, err := logrus.ParseLevel(strings.TrimSpace(v))
				if err != nil {
					return err
				}
				c.LogLevel = level
				return nil
			},
		},
	}
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	*dst = d
	return nil
}

func (c *Config) Lookup(name string) (Option, error) {
	opts := c.Options()
	i := slices.IndexFunc(opts, func(o Option) bool { return o.Name == name })
	if i < 0 {
		return Option{}, fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	return opts[i], nil
}

// Set parses value into the named option. The config is unchanged on error.
func (c *Config) Set(name, value string) error {
	opt, err := c.Lookup(name)
	if err != nil {
		return err
	}
	if err := opt.set(value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", name, err)
	}
	return nil
}

func (c *Config) Get(name string) (string, error) {
	opt, err := c.Lookup(name)
	if err != nil {
		return "", err
	}
	return opt.get(), nil
}

// Tree returns the options under prefix as nested maps split on "/". An
// empty prefix or "all" returns every option; a full option name returns its
// value alone.
func (c *Config) Tree(prefix string) (interface{}, error) {
	prefix = strings.Trim(prefix, "/")
	if prefix == "all" {
		prefix = ""
	}

	root := make(map[string]interface{})
	found := false
	for _, opt := range c.Options() {
		if prefix != "" {
			if opt.Name == prefix {
				return opt.get(), nil
			}
			if !strings.HasPrefix(opt.Name, prefix+"/") {
				continue
			}
		}
		found = true

		node := root
		parts := strings.Split(opt.Name, "/")
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = opt.get()
	}

	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, prefix)
	}
	return root, nil
}
