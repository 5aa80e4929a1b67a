package smokerlog

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultReadInterval    = time.Minute
	DefaultCacheBufferSize = 10
)

type PollerState int

const (
	PollerIdle PollerState = iota
	PollerRunning
	PollerStopped
)

func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "idle"
	case PollerRunning:
		return "running"
	case PollerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("PollerState(%d)", int(s))
	}
}

// ReadingHandler receives each complete reading, in the order the poller
// acquired them.
type ReadingHandler interface {
	HandleReading(Reading)
}

type ReadingHandlerFunc func(Reading)

func (f ReadingHandlerFunc) HandleReading(r Reading) {
	f(r)
}

// BatchWriter is the durable side of the poller. FileSink implements it.
type BatchWriter interface {
	WriteBatch([]Reading) (int, error)
	LogEvent(text string, t time.Time) error
}

// Poller drives periodic acquisition. Its timer is only armed between Start
// and Stop; the owner selects on Ticks() and calls Tick for each one. All
// methods must be called from the same goroutine.
type Poller struct {
	source    DataSource
	sink      BatchWriter
	handlers  []ReadingHandler
	metrics   *Metrics
	threshold int
	interval  time.Duration

	state  PollerState
	ticker *time.Ticker
	cache  []Reading

	started  time.Time
	lastRead time.Time
	reads    int
	misses   int
	flushes  int

	logger logrus.FieldLogger
}

type PollerOption func(p *Poller)

func WithReadInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithCacheBufferSize(n int) PollerOption {
	return func(p *Poller) {
		p.threshold = Max(n, 1)
	}
}

func WithMetrics(m *Metrics) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

func NewPoller(source DataSource, sink BatchWriter, opts ...PollerOption) *Poller {
	p := &Poller{
		source:    source,
		sink:      sink,
		threshold: DefaultCacheBufferSize,
		interval:  DefaultReadInterval,
		state:     PollerIdle,
		started:   time.Now(),
		logger:    logrus.WithField("tag", "Poller"),
	}

	for _, o := range opts {
		o(p)
	}

	return p
}

// Subscribe appends a handler. Handlers are called in subscription order.
func (p *Poller) Subscribe(h ReadingHandler) {
	p.handlers = append(p.handlers, h)
}

// Start arms the repeating timer. It is only valid from the idle state.
func (p *Poller) Start() error {
	if p.state != PollerIdle {
		return fmt.Errorf("cannot start poller in state %s", p.state)
	}

	p.ticker = time.NewTicker(p.interval)
	p.state = PollerRunning
	p.started = time.Now()
	p.logger.WithField("interval", p.interval).Info("poller started")
	return nil
}

// Stop disarms the timer. Buffered readings stay in the cache.
func (p *Poller) Stop() {
	if p.state != PollerRunning {
		p.state = PollerStopped
		return
	}

	p.ticker.Stop()
	p.ticker = nil
	p.state = PollerStopped
	p.logger.Info("poller stopped")
}

func (p *Poller) State() PollerState {
	return p.state
}

// Ticks returns the timer channel, or nil when the poller is not running so
// a select on it blocks forever.
func (p *Poller) Ticks() <-chan time.Time {
	if p.ticker == nil {
		return nil
	}
	return p.ticker.C
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// SetInterval changes the poll interval, re-arming a running timer.
func (p *Poller) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("read interval must be positive, got %s", d)
	}

	p.interval = d
	if p.ticker != nil {
		p.ticker.Reset(d)
	}
	return nil
}

func (p *Poller) Threshold() int {
	return p.threshold
}

func (p *Poller) SetThreshold(n int) error {
	if n < 1 {
		return fmt.Errorf("cache buffer size must be at least 1, got %d", n)
	}
	p.threshold = n
	return nil
}

// Tick performs one acquisition. When the source yields a reading it is
// queued for persistence, handed to every handler, and the cache is flushed
// once it reaches the threshold. It reports whether a reading was acquired.
func (p *Poller) Tick(ctx context.Context) bool {
	p.logger.Debug("retrieving data from source")
	reading, ok := p.source.Fetch(ctx)
	p.metrics.fetched(ok)
	if !ok {
		p.misses++
		p.logger.Debug("source returned no data, will try again later")
		return false
	}

	p.reads++
	p.lastRead = reading.Time
	p.cache = append(p.cache, reading)
	p.metrics.cacheLen(len(p.cache))

	for _, h := range p.handlers {
		h.HandleReading(reading)
	}

	if len(p.cache) >= p.threshold {
		if err := p.Flush(); err != nil {
			p.logger.WithError(err).Error("flush failed, readings stay queued")
		}
	}

	return true
}

// Flush drains the cache to the sink in FIFO order. Readings the sink could
// not write completely remain queued and the error is returned.
func (p *Poller) Flush() error {
	if len(p.cache) == 0 {
		return nil
	}

	p.logger.WithField("readings", len(p.cache)).Debug("writing cached readings to file")
	n, err := p.sink.WriteBatch(p.cache)
	n = Min(Max(n, 0), len(p.cache))

	// Shift instead of reslicing so the backing array does not grow forever.
	remaining := copy(p.cache, p.cache[n:])
	for i := remaining; i < len(p.cache); i++ {
		p.cache[i] = Reading{}
	}
	p.cache = p.cache[:remaining]
	p.metrics.cacheLen(len(p.cache))
	p.metrics.flushed(err)

	if err != nil {
		return fmt.Errorf("flush cache (%d readings written, %d queued): %w", n, len(p.cache), err)
	}

	p.flushes++
	return nil
}

// LogEvent appends a freeform note to the event log. A zero t means now.
func (p *Poller) LogEvent(text string, t time.Time) error {
	if t.IsZero() {
		t = time.Now()
	}
	return p.sink.LogEvent(text, t)
}

func (p *Poller) Cached() int {
	return len(p.cache)
}

// Clear drops every reading still waiting in the cache.
func (p *Poller) Clear() {
	p.cache = nil
	p.metrics.cacheLen(0)
}

func (p *Poller) Source() DataSource {
	return p.source
}

type PollerStatus struct {
	Source    string        `yaml:"source"`
	State     string        `yaml:"state"`
	Interval  time.Duration `yaml:"read_interval"`
	Threshold int           `yaml:"cache_buffer_size"`
	Cached    int           `yaml:"cached"`
	Reads     int           `yaml:"reads"`
	Misses    int           `yaml:"misses"`
	Flushes   int           `yaml:"flushes"`
	RunTime   time.Duration `yaml:"run_time"`
	LastRead  string        `yaml:"last_read"`
}

func (p *Poller) Status() PollerStatus {
	status := PollerStatus{
		Source:    p.source.String(),
		State:     p.state.String(),
		Interval:  p.interval,
		Threshold: p.threshold,
		Cached:    len(p.cache),
		Reads:     p.reads,
		Misses:    p.misses,
		Flushes:   p.flushes,
		RunTime:   time.Since(p.started).Truncate(time.Second),
		LastRead:  "never",
	}
	if !p.lastRead.IsZero() {
		status.LastRead = p.lastRead.Format(TimeLayout)
	}
	return status
}
