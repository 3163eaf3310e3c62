package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GraphMetrics tracks control-plane mutations of the configuration graph.
type GraphMetrics struct {
	patchOperations  *prometheus.CounterVec
	configOperations *prometheus.CounterVec
	activePatches    prometheus.Gauge
	connectedDevices prometheus.Gauge
}

// NewGraphMetrics creates and registers the graph metric group.
func NewGraphMetrics(registerer prometheus.Registerer) (*GraphMetrics, error) {
	m := &GraphMetrics{
		patchOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_graph_patch_operations_total",
			Help: "Patch create/update/reset operations, by outcome",
		}, []string{"operation", "outcome"}),
		configOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audiod_graph_port_config_operations_total",
			Help: "Port config apply/reset operations, by outcome",
		}, []string{"operation", "outcome"}),
		activePatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiod_graph_patches_active",
			Help: "Currently active patches",
		}),
		connectedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audiod_graph_external_devices_connected",
			Help: "Currently connected external device ports",
		}),
	}
	if err := registerAll(registerer,
		m.patchOperations, m.configOperations, m.activePatches, m.connectedDevices); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPatchOperation counts one patch mutation.
func (m *GraphMetrics) RecordPatchOperation(operation string, err error) {
	m.patchOperations.WithLabelValues(operation, outcome(err)).Inc()
}

// RecordConfigOperation counts one port config mutation.
func (m *GraphMetrics) RecordConfigOperation(operation string, err error) {
	m.configOperations.WithLabelValues(operation, outcome(err)).Inc()
}

// SetActivePatches publishes the current patch count.
func (m *GraphMetrics) SetActivePatches(n int) {
	m.activePatches.Set(float64(n))
}

// SetConnectedDevices publishes the current external device port count.
func (m *GraphMetrics) SetConnectedDevices(n int) {
	m.connectedDevices.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
