package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"

	"github.com/cactusdynamics/smokerlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"nhooyr.io/websocket"
)

// Config holds the configuration for the WS reader
type Config struct {
	ServerURL string
	Output    io.Writer
	Logger    logrus.FieldLogger
}

// WSReader reads the live temperature stream and outputs CSV rows of
// sensor name, unix time and temperature.
type WSReader struct {
	config    Config
	csvWriter *csv.Writer
	columns   []string
}

func NewWSReader(config Config) *WSReader {
	return &WSReader{
		config:    config,
		csvWriter: csv.NewWriter(config.Output),
	}
}

// Connect reads until the server ends the stream, the connection closes or
// ctx is canceled.
func (w *WSReader) Connect(ctx context.Context) error {
	u, err := url.Parse(w.config.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	w.config.Logger.WithField("url", u.String()).Info("connecting to websocket")

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := w.csvWriter.Write([]string{"sensor", "x", "y"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for {
		_, messageData, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				w.config.Logger.Info("connection closed normally")
				break
			}
			if ctx.Err() == nil {
				w.config.Logger.WithError(err).Error("error reading message")
			}
			break
		}

		if err := w.processMessage(messageData); err != nil {
			if err == io.EOF {
				w.config.Logger.Info("stream ended")
				break
			}
			w.config.Logger.WithError(err).Error("error processing message")
		}
	}

	w.csvWriter.Flush()
	return w.csvWriter.Error()
}

func (w *WSReader) processMessage(messageData []byte) error {
	msg, err := smokerlog.DecodeMessage(messageData)
	if err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	switch payload := msg.Payload.(type) {
	case smokerlog.DataMessage:
		return w.processDataMessage(payload)

	case smokerlog.Metadata:
		w.columns = payload.PlotOptions.Columns
		w.config.Logger.WithField("columns", w.columns).Debug("received metadata")

	case smokerlog.StreamEndMessage:
		if payload.Error {
			w.config.Logger.WithField("message", payload.Msg).Error("stream ended with error")
		} else {
			w.config.Logger.WithField("message", payload.Msg).Info("stream ended")
		}
		return io.EOF

	default:
		w.config.Logger.Warnf("unknown message type 0x%02x", msg.Header.Type)
	}

	return nil
}

func (w *WSReader) processDataMessage(dataMsg smokerlog.DataMessage) error {
	sensor := strconv.FormatUint(uint64(dataMsg.SeriesID), 10)
	if int(dataMsg.SeriesID) < len(w.columns) {
		sensor = w.columns[dataMsg.SeriesID]
	}

	for i := 0; i < len(dataMsg.X); i++ {
		row := []string{
			sensor,
			strconv.FormatFloat(dataMsg.X[i], 'f', -1, 64),
			strconv.FormatFloat(dataMsg.Y[i], 'g', -1, 64),
		}
		if err := w.csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.csvWriter.Flush()
	return w.csvWriter.Error()
}

func main() {
	serverURL := pflag.StringP("url", "u", "http://localhost:5274", "URL of the SmokerLog plot server")
	debug := pflag.BoolP("debug", "d", false, "debug logging")
	pflag.Parse()

	logrus.SetOutput(os.Stderr)
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	config := Config{
		ServerURL: *serverURL,
		Output:    os.Stdout,
		Logger:    logrus.WithField("tag", "WSReader"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reader := NewWSReader(config)
	if err := reader.Connect(ctx); err != nil {
		config.Logger.WithError(err).Error("failed to connect")
		os.Exit(1)
	}
}
