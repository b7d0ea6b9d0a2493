// Package metrics exports handle storage state to Prometheus.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector(metrics.Options{Locker: s}, s.Sources()...))
//
//	events := metrics.NewEventCounter(reg, metrics.Options{})
//	s.Meshes().Subscribe(events)
//
//	ticks := metrics.NewTickRecorder(reg, metrics.Options{})
//	ticks.Observe(s.Tick())
//
// # Metric Names
//
// With the default namespace the collector exports, labeled by storage:
//
//	carrot_handles_slots
//	carrot_handles_live
//	carrot_handles_pending
//	carrot_handles_free
//	carrot_handles_emplaced_total
//	carrot_handles_reclaimed_total
package metrics
