package smokerlog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func (a *App) registerCommands() {
	a.console.Register(Command{
		Name: "quit",
		Help: "Quit the application, writing cached readings to file first.",
		Run: func(fs *pflag.FlagSet) error {
			return ErrQuit
		},
	})

	a.console.Register(Command{
		Name:  "log",
		Usage: "<event>...",
		Help:  "Log a string. The string is timestamped and written to the event log.",
		Run:   a.commandLog,
	})

	a.console.Register(Command{
		Name: "plot",
		Help: "Display an interactive plot of the recorded temperatures.",
		Run: func(fs *pflag.FlagSet) error {
			url, err := a.startPlot(true)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "plot available at %s\n", url)
			return nil
		},
	})

	a.console.Register(Command{
		Name: "status",
		Help: "Print status information.",
		Run:  a.commandStatus,
	})

	a.console.Register(Command{
		Name: "clear",
		Help: "Clear all logged data. This will clear a plot.",
		Run: func(fs *pflag.FlagSet) error {
			a.poller.Clear()
			a.store.Clear()
			a.metrics.Reset()
			if a.config.Snapshot != "" {
				if err := RemoveSnapshot(a.config.Snapshot); err != nil {
					return err
				}
			}
			a.logger.Info("cleared all data")
			return nil
		},
	})

	a.console.Register(Command{
		Name:  "stats",
		Usage: "[--sensor name]",
		Help:  "Compute and print statistics of the recorded temperatures (avg, min, max, etc.).",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringP("sensor", "s", "", "only this sensor")
		},
		Run: a.commandStats,
	})

	a.console.Register(Command{
		Name:  "dump",
		Usage: "[--sensor name]",
		Help:  "Print a data dump of the recorded data.",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringP("sensor", "s", "", "only this sensor")
		},
		Run: a.commandDump,
	})

	a.console.Register(Command{
		Name:  "region",
		Usage: "[start end] [--clear]",
		Help:  "Print, select or clear the time region used for selected statistics.",
		Flags: func(fs *pflag.FlagSet) {
			fs.Bool("clear", false, "clear the selected region")
		},
		Run: a.commandRegion,
	})

	a.console.Register(Command{
		Name:  "msg",
		Usage: "[--level level] [--clear]",
		Help:  "Print logged messages, for example any warnings logged by the application.",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringP("level", "l", "trace", "least severe level to show")
			fs.Bool("clear", false, "forget the messages shown so far")
		},
		Run: a.commandMsg,
	})

	a.console.Register(Command{
		Name:  "set",
		Usage: "<option> <value>",
		Help:  "Set the value of a configuration option.",
		Run:   a.commandSet,
	})

	a.console.Register(Command{
		Name:  "print",
		Usage: "[option]",
		Help:  "Print the value of a configuration option or tree.",
		Run:   a.commandPrint,
	})

	a.console.Register(Command{
		Name: "read",
		Help: "Poll the data source now instead of waiting for the next tick.",
		Run: func(fs *pflag.FlagSet) error {
			if !a.poller.Tick(context.Background()) {
				fmt.Fprintln(a.out, "no data from source")
				return nil
			}
			a.saveSnapshot()
			return nil
		},
	})

	a.console.Register(Command{
		Name: "flush",
		Help: "Write cached readings to file now.",
		Run: func(fs *pflag.FlagSet) error {
			return a.poller.Flush()
		},
	})

	a.console.Register(Command{
		Name: "help",
		Help: "This output.",
		Run: func(fs *pflag.FlagSet) error {
			a.console.PrintHelp()
			return nil
		},
	})
}

func (a *App) printYAML(v interface{}) error {
	enc := yaml.NewEncoder(a.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (a *App) commandLog(fs *pflag.FlagSet) error {
	if fs.NArg() == 0 {
		fs.Usage()
		return nil
	}

	now := time.Now()
	for _, event := range fs.Args() {
		if err := a.poller.LogEvent(event, now); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) commandStatus(fs *pflag.FlagSet) error {
	lastRead := "never"
	if a.store.Points() > 0 {
		lastRead = FormatClock(a.store.MaxTime())
	}

	plot := "not running"
	if url := a.plot.URL(); url != "" {
		plot = url
	}

	input := "inactive"
	if a.input != nil && a.input.Alive() {
		input = "active"
	}

	return a.printYAML(map[string]interface{}{
		"logger":          a.poller.Status(),
		"user input":      input,
		"plot":            plot,
		"plot clients":    a.hub.Subscribers(),
		"sensors":         a.store.Len(),
		"points":          a.store.Points(),
		"last read time":  lastRead,
		"source firmware": a.source.Info().Version,
	})
}

func (a *App) commandStats(fs *pflag.FlagSet) error {
	report := a.store.Report()

	if sensor, _ := fs.GetString("sensor"); sensor != "" {
		keep := func(m map[string]Stats) map[string]Stats {
			out := make(map[string]Stats)
			if s, ok := m[sensor]; ok {
				out[sensor] = s
			}
			return out
		}
		report.Total = keep(report.Total)
		report.Selected = keep(report.Selected)
	}

	return a.printYAML(report)
}

func (a *App) commandDump(fs *pflag.FlagSet) error {
	sensor, _ := fs.GetString("sensor")

	dump := make(map[string]Series)
	for _, name := range a.store.Names() {
		if sensor != "" && name != sensor {
			continue
		}
		dump[name], _ = a.store.Series(name)
	}

	return a.printYAML(dump)
}

func (a *App) commandRegion(fs *pflag.FlagSet) error {
	if clear, _ := fs.GetBool("clear"); clear {
		a.store.ClearRegion()
		return nil
	}

	switch fs.NArg() {
	case 0:
		region, ok := a.store.Region()
		if !ok {
			fmt.Fprintln(a.out, "no region selected")
			return nil
		}
		fmt.Fprintf(a.out, "%s - %s\n", FormatClock(region.Start), FormatClock(region.End))
		return nil
	case 2:
		start, err := ParseRegionTime(fs.Arg(0), time.Now())
		if err != nil {
			return err
		}
		end, err := ParseRegionTime(fs.Arg(1), time.Now())
		if err != nil {
			return err
		}
		a.store.SelectRegion(NewRegion(start, end))
		return nil
	default:
		fs.Usage()
		return nil
	}
}

// ParseRegionTime accepts unix seconds, a full TimeLayout timestamp, RFC 3339
// or a wall-clock time (ClockLayout) on the same day as now.
func ParseRegionTime(s string, now time.Time) (time.Time, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(secs), 0), nil
	}
	if t, err := time.ParseInLocation(TimeLayout, s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(ClockLayout, s, now.Location()); err == nil {
		y, m, d := now.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func (a *App) commandMsg(fs *pflag.FlagSet) error {
	if clear, _ := fs.GetBool("clear"); clear {
		a.logs.Clear()
		return nil
	}

	name, _ := fs.GetString("level")
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}

	entries := a.logs.Entries(level)
	if len(entries) == 0 {
		fmt.Fprintf(a.out, "no messages at level %s or above\n", level)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(a.out, e)
	}
	return nil
}

func (a *App) commandSet(fs *pflag.FlagSet) error {
	if fs.NArg() != 2 {
		fs.Usage()
		return nil
	}

	name, value := fs.Arg(0), fs.Arg(1)
	a.logger.WithFields(logrus.Fields{"option": name, "value": value}).Debug("setting option")

	previous, err := a.config.Get(name)
	if err != nil {
		return err
	}
	if err := a.config.Set(name, value); err != nil {
		return err
	}
	if err := a.applyOption(name); err != nil {
		// Keep config and components in agreement.
		a.config.Set(name, previous)
		return err
	}

	opt, _ := a.config.Lookup(name)
	if !opt.Runtime {
		fmt.Fprintf(a.out, "%s takes effect on restart\n", name)
	}
	return nil
}

func (a *App) commandPrint(fs *pflag.FlagSet) error {
	option := "all"
	if fs.NArg() > 0 {
		option = fs.Arg(0)
	}

	tree, err := a.config.Tree(option)
	if errors.Is(err, ErrUnknownOption) {
		fmt.Fprintf(a.out, "'%s' does not exist. Here is the config tree.\n", option)
		tree, err = a.config.Tree("all")
	}
	if err != nil {
		return err
	}

	if s, ok := tree.(string); ok {
		fmt.Fprintf(a.out, "%s: %s\n", strings.Trim(option, "/"), s)
		return nil
	}
	return a.printYAML(tree)
}
