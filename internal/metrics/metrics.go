// Package metrics exposes deploy pipeline collectors.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "devkit_deploy"

// Deploy holds the collectors updated by the orchestrator.
type Deploy struct {
	DeploysTotal  *prom.CounterVec
	StageResults  *prom.CounterVec
	StageDuration *prom.HistogramVec
	BytesUploaded prom.Counter
	ActiveDeploys prom.Gauge
}

// NewDeploy registers the collectors on reg. A nil reg creates a private registry.
func NewDeploy(reg prom.Registerer) *Deploy {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Deploy{
		DeploysTotal: factory.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "deploys_total",
			Help:      "Deploy sessions by outcome (Counter). outcome=succeeded|failed|shortcut_failed.",
		}, []string{"outcome"}),
		StageResults: factory.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Terminal stage statuses (Counter). Labels: stage, status.",
		}, []string{"stage", "status"}),
		StageDuration: factory.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each stage (Histogram).",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		BytesUploaded: factory.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes written to devices during uploads (Counter).",
		}),
		ActiveDeploys: factory.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_deploys",
			Help:      "Deploy sessions currently running (Gauge).",
		}),
	}
}

// ObserveStage records a finished stage.
func (m *Deploy) ObserveStage(stage, status string, elapsed time.Duration) {
	m.StageResults.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveDeploy records a finished session.
func (m *Deploy) ObserveDeploy(outcome string) {
	m.DeploysTotal.WithLabelValues(outcome).Inc()
}

// Scan holds the collectors updated by device scans.
type Scan struct {
	ScansTotal        *prom.CounterVec
	DevicesDiscovered prom.Gauge
}

// NewScan registers the scan collectors on reg. A nil reg creates a private registry.
func NewScan(reg prom.Registerer) *Scan {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Scan{
		ScansTotal: factory.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Device scans by result (Counter). result=ok|error.",
		}, []string{"result"}),
		DevicesDiscovered: factory.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_discovered",
			Help:      "Devices returned by the last successful scan (Gauge).",
		}),
	}
}

// ObserveScan records one scan. A failed scan leaves the device gauge untouched.
func (m *Scan) ObserveScan(devices int, err error) {
	if err != nil {
		m.ScansTotal.WithLabelValues("error").Inc()
		return
	}
	m.ScansTotal.WithLabelValues("ok").Inc()
	m.DevicesDiscovered.Set(float64(devices))
}
