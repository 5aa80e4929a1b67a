package smokerlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// App owns every long-lived component and runs the event loop that all
// mutable state lives on: poller ticks, console commands and closures posted
// by the plot server are handled one at a time on the goroutine running Run.
type App struct {
	config  *Config
	loop    *EventLoop
	source  DataSource
	fetcher *HTTPFetcher
	poller  *Poller
	store   *Store
	hub     *Hub
	sink    *FileSink
	metrics *Metrics
	logs    *LogBuffer
	console *Console
	in      io.Reader
	input   *InputReader
	plot    *HttpServer
	out     io.Writer

	logger logrus.FieldLogger
}

type AppOption func(a *App)

// WithFetcher lets runtime changes of data/timeout reach the HTTP fetcher
// behind the source.
func WithFetcher(f *HTTPFetcher) AppOption {
	return func(a *App) {
		a.fetcher = f
	}
}

func WithLogBuffer(b *LogBuffer) AppOption {
	return func(a *App) {
		a.logs = b
	}
}

// WithConsole reads commands from in. Without it the app runs headless.
func WithConsole(in io.Reader) AppOption {
	return func(a *App) {
		a.in = in
	}
}

func WithOutput(out io.Writer) AppOption {
	return func(a *App) {
		a.out = out
	}
}

func NewApp(config *Config, source DataSource, opts ...AppOption) *App {
	a := &App{
		config: config,
		loop:   NewEventLoop(),
		source: source,
		out:    os.Stdout,
		logger: logrus.WithField("tag", "App"),
	}

	for _, o := range opts {
		o(a)
	}
	if a.logs == nil {
		a.logs = NewLogBuffer(256)
	}
	if a.in != nil {
		a.input = NewInputReader(a.in, a.out, DefaultPrompt)
	}

	a.metrics = NewMetrics()
	a.sink = NewFileSink(config.Prefix)
	a.store = a.loadStore()
	a.hub = NewHub(a.metrics)

	a.poller = NewPoller(source, a.sink,
		WithReadInterval(config.ReadInterval),
		WithCacheBufferSize(config.CacheBufferSize),
		WithMetrics(a.metrics),
	)
	a.poller.Subscribe(ReadingHandlerFunc(a.store.Append))
	a.poller.Subscribe(a.hub)
	a.poller.Subscribe(a.metrics)

	a.console = NewConsole(a.out)
	a.registerCommands()

	a.plot = NewHttpServer(a.loop, a.store, a.hub, a.metrics, config.PlotAddr, a.plotOptions)

	return a
}

func (a *App) loadStore() *Store {
	if a.config.Snapshot == "" {
		return NewStore()
	}

	st, err := LoadSnapshot(a.config.Snapshot)
	switch {
	case errors.Is(err, os.ErrNotExist):
		a.logger.WithField("file", a.config.Snapshot).Debug("no snapshot found, starting empty")
		return NewStore()
	case err != nil:
		a.logger.WithError(err).WithField("file", a.config.Snapshot).Warn("cannot load snapshot, starting empty")
		return NewStore()
	}

	a.logger.WithFields(logrus.Fields{
		"file":    a.config.Snapshot,
		"sensors": st.Len(),
		"points":  st.Points(),
	}).Info("loaded snapshot")
	return st
}

func (a *App) plotOptions() PlotOptions {
	return PlotOptions{
		Title:  "Temperature Logs",
		Colors: append([]string(nil), a.config.Colors...),
		XLabel: "time",
		YLabel: fmt.Sprintf("temperature (%s)", a.config.TempUnits),
		YUnit:  a.config.TempUnits,
	}
}

func (a *App) Store() *Store {
	return a.store
}

func (a *App) Poller() *Poller {
	return a.poller
}

func (a *App) Console() *Console {
	return a.console
}

func (a *App) Loop() *EventLoop {
	return a.loop
}

func (a *App) PlotServer() *HttpServer {
	return a.plot
}

// Run polls until ctx is canceled, the console input ends or the quit
// command runs. Buffered readings are flushed and the snapshot saved before
// it returns.
func (a *App) Run(ctx context.Context) error {
	if err := a.poller.Start(); err != nil {
		return err
	}
	a.tick(ctx)

	var lines <-chan string
	if a.input != nil {
		a.console.PrintHelp()
		a.input.Start()
		a.input.Prompt()
		lines = a.input.Lines()
	} else {
		if _, err := a.startPlot(false); err != nil {
			a.shutdown()
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil

		case <-a.poller.Ticks():
			a.tick(ctx)

		case line, ok := <-lines:
			if !ok {
				a.shutdown()
				return nil
			}
			err := a.console.Execute(line)
			if errors.Is(err, ErrQuit) {
				a.shutdown()
				return nil
			}
			if err != nil {
				fmt.Fprintf(a.out, "error: %v\n", err)
			}
			a.input.Prompt()

		case fn := <-a.loop.Posted():
			fn()
		}
	}
}

func (a *App) tick(ctx context.Context) {
	if a.poller.Tick(ctx) {
		a.saveSnapshot()
	}
}

func (a *App) saveSnapshot() {
	if a.config.Snapshot == "" {
		return
	}
	if err := SaveSnapshot(a.config.Snapshot, a.store); err != nil {
		a.logger.WithError(err).Error("cannot save snapshot")
	}
}

func (a *App) startPlot(open bool) (string, error) {
	url, err := a.plot.Start()
	if err != nil {
		return "", err
	}
	if open {
		openBrowser(url)
	}
	return url, nil
}

func (a *App) shutdown() {
	a.logger.Info("shutting down...")
	a.loop.Stop()
	a.poller.Stop()
	if err := a.poller.Flush(); err != nil {
		a.logger.WithError(err).Error("final flush failed, cached readings are lost")
		fmt.Fprintf(a.out, "warning: %v\n", err)
	}
	a.saveSnapshot()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.plot.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("plot server did not shut down cleanly")
	}
}

// applyOption pushes a changed option into the running components.
func (a *App) applyOption(name string) error {
	switch name {
	case OptReadInterval:
		return a.poller.SetInterval(a.config.ReadInterval)
	case OptCacheBufferSize:
		return a.poller.SetThreshold(a.config.CacheBufferSize)
	case OptPrefix:
		a.sink.SetPrefix(a.config.Prefix)
	case OptTimeout:
		if a.fetcher != nil {
			a.fetcher.SetTimeout(a.config.Timeout)
		}
	case OptLogLevel:
		logrus.SetLevel(a.config.LogLevel)
	}
	return nil
}
