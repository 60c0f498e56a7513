package daemon

import (
	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/the-lightning-land/reachd/connectivity"
)

var allStatuses = []connectivity.Status{
	connectivity.Unknown,
	connectivity.NotReachable,
	connectivity.ViaLocalWireless,
	connectivity.ViaCellular,
}

type metrics struct {
	status  *prometheus.GaugeVec
	changes *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, d *Daemon) (*metrics, error) {
	m := &metrics{
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reachd",
			Name:      "watch_status",
			Help:      "Current status of a watch, 1 for the active status label.",
		}, []string{"watch", "status"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reachd",
			Name:      "watch_status_changes_total",
			Help:      "Status notifications received per watch.",
		}, []string{"watch"}),
	}

	monitors := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "reachd",
		Name:      "monitors",
		Help:      "Number of running reachability monitors.",
	}, func() float64 {
		return float64(d.monitorCount())
	})

	subscriptions := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "reachd",
		Name:      "subscriptions",
		Help:      "Number of registered monitor subscriptions.",
	}, func() float64 {
		return float64(d.subscriptionCount())
	})

	for _, c := range []prometheus.Collector{m.status, m.changes, monitors, subscriptions} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Errorf("could not register metrics: %v", err)
		}
	}

	return m, nil
}

func (m *metrics) setStatus(watch string, status connectivity.Status) {
	for _, s := range allStatuses {
		value := 0.0
		if s == status {
			value = 1
		}

		m.status.WithLabelValues(watch, statusLabel(s)).Set(value)
	}
}

func (m *metrics) changed(watch string, status connectivity.Status) {
	m.changes.WithLabelValues(watch).Inc()
	m.setStatus(watch, status)
}

func (m *metrics) forget(watch string) {
	m.status.DeletePartialMatch(prometheus.Labels{"watch": watch})
	m.changes.DeleteLabelValues(watch)
}

func statusLabel(status connectivity.Status) string {
	text, err := status.MarshalText()
	if err != nil {
		return "invalid"
	}

	return string(text)
}
