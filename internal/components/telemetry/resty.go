package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
	report_resty_failures = "resty.failures"
)

type restyInstrument struct {
	tel       API
	idcounter *uint64
	failures  *int64
}

// InstrumentResty reports every request made by the client at debug level and every
// transport failure as broken.
func InstrumentResty(client *resty.Client, tel API) {
	var idcounter uint64
	var failures int64
	i := restyInstrument{tel: tel, idcounter: &idcounter, failures: &failures}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type restyCtxKeyType int

var restyCtxKey restyCtxKeyType

type restyCtx struct {
	id uint64
	// startTime does not need to rely on chrono because only the elapsed duration is used.
	startTime time.Time
}

func (i restyInstrument) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := atomic.AddUint64(i.idcounter, 1)
	ctx := context.WithValue(req.Context(), restyCtxKey, restyCtx{
		id:        id,
		startTime: time.Now(),
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)
	req.SetContext(ctx)
	return nil
}

func (i restyInstrument) elapsed(req *resty.Request) (uint64, time.Duration) {
	rc, ok := req.Context().Value(restyCtxKey).(restyCtx)
	if !ok {
		return 0, 0
	}
	return rc.id, time.Since(rc.startTime)
}

func (i restyInstrument) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	id, duration := i.elapsed(res.Request)
	i.tel.ReportDebug(report_resty_response, id, duration.String(), res.Status())
	return nil
}

func (i restyInstrument) onError(req *resty.Request, err error) {
	id, duration := i.elapsed(req)
	i.tel.ReportBroken(report_resty_response, err, id, req.Method, req.URL, duration)
	i.tel.ReportCount(report_resty_failures, atomic.AddInt64(i.failures, 1))
}
