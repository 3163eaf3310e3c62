package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics tracks the data-plane workers.
type StreamMetrics struct {
	commandsProcessed *prometheus.CounterVec
	bytesTransferred  *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	openStreams       *prometheus.GaugeVec
}

// NewStreamMetrics creates and registers the stream metric group.
func NewStreamMetrics(registerer prometheus.Registerer) (*StreamMetrics, error) {
	m := &StreamMetrics{
		commandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_stream_commands_processed_total",
			Help: "Stream commands processed, by worker kind and reply status",
		}, []string{"worker", "status"}),
		bytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_stream_bytes_transferred_total",
			Help: "Audio bytes moved through the data channels, by worker kind",
		}, []string{"worker"}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_stream_state_transitions_total",
			Help: "Worker state machine transitions",
		}, []string{"worker", "from", "to"}),
		openStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audiod_streams_open",
			Help: "Currently open streams, by direction",
		}, []string{"direction"}),
	}
	if err := registerAll(registerer,
		m.commandsProcessed, m.bytesTransferred, m.stateTransitions, m.openStreams); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCommand counts one processed command.
func (m *StreamMetrics) RecordCommand(worker, status string) {
	m.commandsProcessed.WithLabelValues(worker, status).Inc()
}

// RecordBytesTransferred counts bytes moved through a data channel.
func (m *StreamMetrics) RecordBytesTransferred(worker string, n int) {
	m.bytesTransferred.WithLabelValues(worker).Add(float64(n))
}

// RecordStateTransition counts one state machine transition.
func (m *StreamMetrics) RecordStateTransition(worker, from, to string) {
	m.stateTransitions.WithLabelValues(worker, from, to).Inc()
}

// StreamOpened adjusts the open-stream gauge up.
func (m *StreamMetrics) StreamOpened(direction string) {
	m.openStreams.WithLabelValues(direction).Inc()
}

// StreamClosed adjusts the open-stream gauge down.
func (m *StreamMetrics) StreamClosed(direction string) {
	m.openStreams.WithLabelValues(direction).Dec()
}
