// Package classflow loads JVM classes into an analysis session and runs the
// detection rules over it.
package classflow

import "github.com/715d/classflow/pkg/rules"

// Diagnostic reports a class or method that could not be analyzed.
type Diagnostic struct {
	URI     string `json:"uri"`
	Class   string `json:"class,omitempty"`
	Message string `json:"message"`
}

// Report is the outcome of one analysis run.
type Report struct {
	Findings    []rules.Finding `json:"findings"`
	Diagnostics []Diagnostic    `json:"diagnostics"`
	Stats       Stats           `json:"stats"`
}

// Stats summarizes a run.
type Stats struct {
	Classes    int `json:"classes"`
	Targets    int `json:"targets"`
	Findings   int `json:"findings"`
	Suppressed int `json:"suppressed"`
}
