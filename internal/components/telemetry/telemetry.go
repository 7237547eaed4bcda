package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics, tests swap it for a recorder to assert
// that a failure was reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that has broken in a way that should be addressed.
	//
	// `id` names the component that broke, not the line that broke. A click that fails in the
	// navigator while moving from the detail page to the showtimes page is `navigator.click`;
	// the page, the selector and the error go into params.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	//
	// The package namespace comes from ScopedAPI, so an id is usually just
	// `<name of struct or intf>.<method>`.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not broken yet but worth a look, a site that
	// served a challenge page or a dropped alert.
	ReportWarning(id string, params ...any)

	// ReportDebug reports some debug information that will be ignored in production
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current value of a running counter. Points are meant to be
	// read over time, not summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id (and debug message) with a namespace. Scoping a ScopedAPI
// again joins the namespaces with a dot, "service" then "pass" reports as "service.pass: id".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	if scoped, ok := inner.(ScopedAPI); ok {
		return ScopedAPI{namespace: scoped.namespace + "." + namespace, inner: scoped.inner}
	}
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) Namespace() string {
	return s.namespace
}

func (s ScopedAPI) qualify(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.qualify(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.qualify(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.qualify(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.qualify(id), count)
}
