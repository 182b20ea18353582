package classflow

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	set = metrics.NewSet()

	classesLoaded    = set.NewCounter(`classflow_classes_loaded_total`)
	classesFailed    = set.NewCounter(`classflow_class_failures_total`)
	cfgFailures      = set.NewCounter(`classflow_cfg_failures_total`)
	methodsAnalyzed  = set.NewCounter(`classflow_methods_analyzed_total`)
	budgetExceeded   = set.NewCounter(`classflow_budget_exceeded_total`)
	findingsEmitted  = set.NewCounter(`classflow_findings_total`)
	findingsSilenced = set.NewCounter(`classflow_findings_suppressed_total`)
)

// WriteMetrics writes the run counters in Prometheus text format.
func WriteMetrics(w io.Writer) {
	set.WritePrometheus(w)
}
