package smokerlog

import (
	"github.com/sirupsen/logrus"
)

// Buffered capacity of each subscriber channel. A plot client that falls this
// far behind starts missing live updates.
const subscriberBufferSize = 1024

// Hub fans readings out to live plot clients. Like the Store it belongs to
// the event loop: Register, Deregister and HandleReading are only called
// from there, which is what lets a new client copy the history and
// subscribe in one step without missing or repeating a reading.
type Hub struct {
	subscribers []chan<- Reading
	metrics     *Metrics

	numPublished int
	numDropped   int

	logger logrus.FieldLogger
}

func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		subscribers: make([]chan<- Reading, 0),
		metrics:     metrics,
		logger:      logrus.WithField("tag", "Hub"),
	}
}

// Register adds a subscriber. c should be buffered; see HandleReading.
func (h *Hub) Register(c chan<- Reading) {
	h.subscribers = append(h.subscribers, c)
	h.metrics.subscribersChanged(len(h.subscribers))
	h.logger.WithField("subscribers", len(h.subscribers)).Info("registered channel")
}

// Deregister removes a subscriber. The caller closes the channel afterwards,
// never before.
func (h *Hub) Deregister(c chan<- Reading) {
	h.subscribers = Filter(h.subscribers, func(channel chan<- Reading) bool {
		return channel != c
	})
	h.metrics.subscribersChanged(len(h.subscribers))
	h.logger.WithField("subscribers", len(h.subscribers)).Info("deregistered channel")
}

func (h *Hub) Subscribers() int {
	return len(h.subscribers)
}

// HandleReading publishes a reading to every subscriber without blocking the
// loop. A subscriber whose buffer is full misses this reading.
func (h *Hub) HandleReading(r Reading) {
	h.numPublished++
	for _, c := range h.subscribers {
		select {
		case c <- r:
		default:
			h.numDropped++
			h.logger.WithField("time", r.Time).Warn("subscriber is not keeping up, dropping live update")
		}
	}
}
