package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Prometheus metrics, labeled by device instance ("leveled"/"baseline")
	promMetrics = struct {
		deadPages     *prometheus.GaugeVec
		wearSpread    *prometheus.GaugeVec
		gcRuns        *prometheus.GaugeVec
		migrations    *prometheus.GaugeVec
		writeFailures *prometheus.GaugeVec
		readFailures  *prometheus.GaugeVec
	}{
		deadPages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flashsim_dead_pages",
			Help: "Permanently unusable pages on the device",
		}, []string{"instance"}),
		wearSpread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flashsim_wear_spread",
			Help: "Erase-count spread (max - min) over usable blocks",
		}, []string{"instance"}),
		gcRuns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flashsim_gc_runs_total",
			Help: "Completed garbage collection passes",
		}, []string{"instance"}),
		migrations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flashsim_static_wl_migrations_total",
			Help: "Completed static wear-leveling block migrations",
		}, []string{"instance"}),
		writeFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flashsim_write_failures_total",
			Help: "Writes failed with out-of-space",
		}, []string{"instance"}),
		readFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flashsim_read_failures_total",
			Help: "Reads of unmapped logical addresses",
		}, []string{"instance"}),
	}
)

func initPrometheusMetrics() {
	prometheus.MustRegister(
		promMetrics.deadPages,
		promMetrics.wearSpread,
		promMetrics.gcRuns,
		promMetrics.migrations,
		promMetrics.writeFailures,
		promMetrics.readFailures,
	)
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func updatePrometheusMetrics(state *simState) {
	leveled, unleveled := state.metrics()

	promMetrics.deadPages.WithLabelValues("leveled").Set(float64(leveled.DeadPages))
	promMetrics.wearSpread.WithLabelValues("leveled").Set(float64(leveled.WearSpread))
	promMetrics.gcRuns.WithLabelValues("leveled").Set(float64(leveled.GCRuns))
	promMetrics.migrations.WithLabelValues("leveled").Set(float64(leveled.Migrations))
	promMetrics.writeFailures.WithLabelValues("leveled").Set(float64(leveled.WriteFailures))
	promMetrics.readFailures.WithLabelValues("leveled").Set(float64(leveled.ReadFailures))

	promMetrics.deadPages.WithLabelValues("baseline").Set(float64(unleveled.DeadPages))
	promMetrics.wearSpread.WithLabelValues("baseline").Set(float64(unleveled.WearSpread))
	promMetrics.gcRuns.WithLabelValues("baseline").Set(float64(unleveled.GCRuns))
	promMetrics.migrations.WithLabelValues("baseline").Set(float64(unleveled.Migrations))
	promMetrics.writeFailures.WithLabelValues("baseline").Set(float64(unleveled.WriteFailures))
	promMetrics.readFailures.WithLabelValues("baseline").Set(float64(unleveled.ReadFailures))
}
