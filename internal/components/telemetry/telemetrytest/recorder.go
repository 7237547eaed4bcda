// Package telemetrytest provides a telemetry.API that records reports so tests can
// assert on what a component logged.
package telemetrytest

import (
	"strings"
	"sync"
)

type Kind int

const (
	Broken Kind = iota
	Warning
	Debug
	Count
)

type Report struct {
	Kind   Kind
	ID     string
	Params []any
	Count  int64
}

// Recorder implements telemetry.API.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(report Report) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, report)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add(Report{Kind: Broken, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add(Report{Kind: Warning, ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add(Report{Kind: Debug, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add(Report{Kind: Count, ID: id, Count: count})
}

// Reports returns a copy of everything reported so far.
func (r *Recorder) Reports() []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Find returns all reports of the given kind whose id ends with suffix, scoping
// prefixes are ignored that way.
func (r *Recorder) Find(kind Kind, suffix string) []Report {
	var out []Report
	for _, report := range r.Reports() {
		if report.Kind == kind && strings.HasSuffix(report.ID, suffix) {
			out = append(out, report)
		}
	}
	return out
}
