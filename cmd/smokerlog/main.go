package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cactusdynamics/smokerlog"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

type options struct {
	Host            string        `short:"H" long:"host" description:"address of the Stoker" default:"192.168.1.3"`
	Mode            string        `short:"m" long:"mode" description:"how to read the Stoker" choice:"html" choice:"json" default:"html"`
	Timeout         time.Duration `long:"timeout" description:"timeout of a single read" default:"5s"`
	ReadInterval    time.Duration `short:"i" long:"read-interval" description:"time between reads" default:"1m"`
	CacheBufferSize int           `short:"b" long:"buffer-size" description:"readings cached before they are written to file" default:"10"`
	Prefix          string        `short:"p" long:"prefix" description:"prefix of the temperature log files" default:"default"`
	Snapshot        string        `long:"snapshot" description:"file the recorded data is kept in between runs, empty to disable" default:".SmokerLog.snapshot"`
	Addr            string        `short:"a" long:"addr" description:"listen address of the plot server" default:"127.0.0.1:5274"`
	Colors          string        `long:"colors" description:"comma separated plot colors" default:"red,blue,green,yellow"`
	Units           string        `short:"u" long:"units" description:"temperature units, read from the Stoker if empty"`
	LogFile         string        `long:"log-file" description:"application log file" default:"SmokerLog.log"`
	Debug           bool          `short:"d" long:"debug" description:"debug logging and a simulated Stoker"`
	Headless        bool          `long:"headless" description:"no console, serve the plot until interrupted"`
}

func (o options) config() (*smokerlog.Config, error) {
	config := smokerlog.DefaultConfig()
	config.Source = o.Host
	config.Mode = o.Mode
	config.Timeout = o.Timeout
	config.ReadInterval = o.ReadInterval
	config.CacheBufferSize = o.CacheBufferSize
	config.Prefix = o.Prefix
	config.Snapshot = o.Snapshot
	config.PlotAddr = o.Addr
	config.TempUnits = o.Units
	config.LogFilename = o.LogFile

	if err := config.Set(smokerlog.OptColors, o.Colors); err != nil {
		return nil, err
	}
	if o.Debug {
		config.LogLevel = logrus.DebugLevel
	}

	// Re-validate through the option table.
	for _, opt := range config.Options() {
		if err := config.Set(opt.Name, opt.Get()); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", opt.Name, err)
		}
	}
	return config, nil
}

func newSource(config *smokerlog.Config, debug bool) (smokerlog.DataSource, *smokerlog.HTTPFetcher, error) {
	if debug {
		return &smokerlog.IntermittentSource{}, nil, nil
	}

	fetcher, err := smokerlog.NewHTTPFetcher(smokerlog.WithTimeout(config.Timeout))
	if err != nil {
		return nil, nil, err
	}

	switch config.Mode {
	case smokerlog.ModeJSON:
		return smokerlog.NewStokerJSONSource(config.Source, fetcher), fetcher, nil
	default:
		return smokerlog.NewStokerWebSource(config.Source, fetcher), fetcher, nil
	}
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	config, err := opts.config()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logFile, err := os.OpenFile(config.LogFilename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	logs := smokerlog.NewLogBuffer(256)
	logrus.SetOutput(logFile)
	logrus.SetLevel(config.LogLevel)
	logrus.AddHook(logs)

	logger := logrus.WithField("tag", "main")

	source, fetcher, err := newSource(config, opts.Debug)
	if err != nil {
		logger.WithError(err).Fatal("cannot create data source")
	}
	if config.TempUnits == "" {
		config.TempUnits = strings.ToUpper(source.Info().TempUnits)
		if config.TempUnits == "" {
			config.TempUnits = "F"
		}
	}

	appOpts := []smokerlog.AppOption{smokerlog.WithLogBuffer(logs)}
	if fetcher != nil {
		appOpts = append(appOpts, smokerlog.WithFetcher(fetcher))
	}
	if !opts.Headless {
		appOpts = append(appOpts, smokerlog.WithConsole(os.Stdin))
	}

	app := smokerlog.NewApp(config, source, appOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"source":   source.String(),
		"interval": config.ReadInterval,
		"prefix":   config.Prefix,
	}).Info("starting SmokerLog")

	if err := app.Run(ctx); err != nil {
		logger.WithError(err).Error("SmokerLog stopped with an error")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
