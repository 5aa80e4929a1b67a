package smokerlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// HttpServer serves the live plot: the web UI, plot metadata, a binary
// websocket stream of every reading, region selection, statistics and
// metrics. Every access to the store or hub goes through the event loop.
type HttpServer struct {
	loop    *EventLoop
	store   *Store
	hub     *Hub
	metrics *Metrics
	options func() PlotOptions

	addr   string
	mux    *http.ServeMux
	server *http.Server
	url    string
	done   chan struct{}
	once   sync.Once

	logger logrus.FieldLogger
}

// NewHttpServer builds the handlers. options is called on the loop
// goroutine whenever a client needs plot metadata.
func NewHttpServer(loop *EventLoop, store *Store, hub *Hub, metrics *Metrics, addr string, options func() PlotOptions) *HttpServer {
	s := &HttpServer{
		loop:    loop,
		store:   store,
		hub:     hub,
		metrics: metrics,
		options: options,
		addr:    addr,
		mux:     http.NewServeMux(),
		done:    make(chan struct{}),
		logger:  logrus.WithField("tag", "HttpServer"),
	}

	subFS, err := fs.Sub(webuiFiles, "webui")
	if err != nil {
		panic(err)
	}

	s.mux.Handle("/", http.FileServer(http.FS(subFS)))
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/metadata", s.handleMetadata)
	s.mux.HandleFunc("/region", s.handleRegion)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

func plotLogger() logrus.FieldLogger {
	return logrus.WithField("tag", "plot")
}

func (s *HttpServer) Handler() http.Handler {
	return s.mux
}

// metadata must run on the loop.
func (s *HttpServer) metadata() Metadata {
	md := Metadata{
		XIsTimestamp: true,
		PlotOptions:  s.options(),
	}
	md.PlotOptions.Columns = s.store.Names()
	if r, ok := s.store.Region(); ok {
		md.Region = &r
	}
	return md
}

func (s *HttpServer) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	c, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.WithError(err).Warn("failed to accept new websocket connection")
		return
	}

	// We only ever write to plot clients.
	ctx := c.CloseRead(req.Context())

	channel := make(chan Reading, subscriberBufferSize)
	var history *Store
	var metadata Metadata

	// Copying the history and subscribing happen in one loop step, so the
	// first live reading on channel is the first one not in history.
	err = s.loop.Do(ctx, func() {
		history = s.store.Copy()
		metadata = s.metadata()
		s.hub.Register(channel)
	})
	if err != nil {
		c.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	defer func() {
		deregisterCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := s.loop.Do(deregisterCtx, func() {
			s.hub.Deregister(channel)
		})
		if err != nil {
			s.logger.WithError(err).Debug("could not deregister channel")
		}
	}()

	err = s.streamReadings(ctx, c, history, metadata, channel)
	switch {
	case err == nil:
		c.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
		s.logger.Info("client closed connection or context canceled")
		c.Close(websocket.StatusNormalClosure, "")
	default:
		s.logger.WithError(err).Warn("websocket write failed and closed")
	}
}

func (s *HttpServer) streamReadings(ctx context.Context, c *websocket.Conn, history *Store, metadata Metadata, channel <-chan Reading) error {
	write := func(payload interface{}) error {
		buf, err := EncodeMessage(NewMessage(payload))
		if err != nil {
			return err
		}
		return c.Write(ctx, websocket.MessageBinary, buf)
	}

	if err := write(metadata); err != nil {
		return err
	}
	for i, name := range history.Names() {
		series, _ := history.Series(name)
		if err := write(NewDataMessage(uint32(i), series)); err != nil {
			return err
		}
	}

	for {
		select {
		case reading := <-channel:
			for _, sv := range reading.Temps {
				id, ok := metadata.SeriesID(sv.Name)
				if !ok {
					metadata.PlotOptions.Columns = append(metadata.PlotOptions.Columns, sv.Name)
					id = uint32(len(metadata.PlotOptions.Columns) - 1)
					if err := write(metadata); err != nil {
						return err
					}
				}
				point := Series{Times: []float64{reading.X()}, Values: []float64{sv.Value}}
				if err := write(NewDataMessage(id, point)); err != nil {
					return err
				}
			}
		case <-s.done:
			return write(StreamEndMessage{Msg: "server shutting down"})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *HttpServer) handleMetadata(w http.ResponseWriter, req *http.Request) {
	var md Metadata
	if err := s.loop.Do(req.Context(), func() { md = s.metadata() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, md)
}

func (s *HttpServer) handleRegion(w http.ResponseWriter, req *http.Request) {
	var region *Region
	var update func()

	switch req.Method {
	case http.MethodGet:
		update = func() {
			if r, ok := s.store.Region(); ok {
				region = &r
			}
		}
	case http.MethodPost, http.MethodPut:
		var r Region
		if err := json.NewDecoder(req.Body).Decode(&r); err != nil {
			http.Error(w, fmt.Sprintf("invalid region: %v", err), http.StatusBadRequest)
			return
		}
		update = func() {
			s.store.SelectRegion(r)
			selected, _ := s.store.Region()
			region = &selected
		}
	case http.MethodDelete:
		update = s.store.ClearRegion
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.loop.Do(req.Context(), update); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, region)
}

func (s *HttpServer) handleStats(w http.ResponseWriter, req *http.Request) {
	var report StatsReport
	if err := s.loop.Do(req.Context(), func() { report = s.store.Report() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, report)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Add("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(err.Error()))
	}
}

// Start binds the listen address and serves in the background. It returns
// the URL of the plot page.
func (s *HttpServer) Start() (string, error) {
	if s.server != nil {
		return s.url, nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("cannot listen on %s: %w", s.addr, err)
	}

	s.server = &http.Server{Handler: s.mux}
	s.url = fmt.Sprintf("http://%s", listener.Addr().String())

	go func() {
		s.logger.Infof("starting HTTP server at %s", s.url)
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped")
		}
	}()

	return s.url, nil
}

func (s *HttpServer) URL() string {
	return s.url
}

// Shutdown ends live streams with a STREAM_END message and stops serving.
func (s *HttpServer) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.done) })
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
