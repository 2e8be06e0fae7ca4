package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Event is a protocol event counted by a Recorder.
type Event string

// Protocol events.
const (
	FrameSent       = Event("frame_sent")
	FrameResent     = Event("frame_resent")
	FrameDropped    = Event("frame_dropped")
	FrameDelivered  = Event("frame_delivered")
	FrameDiscarded  = Event("frame_discarded")
	AckSent         = Event("ack_sent")
	AckDropped      = Event("ack_dropped")
	AckReceived     = Event("ack_received")
	AckTimeout      = Event("ack_timeout")
	RunCompleted    = Event("run_completed")
	DecodeFailed    = Event("decode_failed")
	SessionOpened   = Event("session_opened")
	SessionReleased = Event("session_released")
)

// Recorder records protocol events and API request metrics.
type Recorder interface {
	Record(ev Event)
	RecordRequest(resTime time.Duration, hasErr bool)
}

type dummy struct{}

// NewDummy constructs a new dummy metrics recorder.
func NewDummy() Recorder {
	return &dummy{}
}

func (m *dummy) Record(ev Event) {}

func (m *dummy) RecordRequest(resTime time.Duration, hasErr bool) {}

type prom struct {
	events   *prometheus.CounterVec
	reqCount prometheus.Counter
	errCount prometheus.Counter
	resTime  prometheus.Summary
}

// NewPrometheus constructs a new Prometheus metrics recorder and registers
// its collectors with reg.
func NewPrometheus(service string, reg prometheus.Registerer) (Recorder, error) {
	m := &prom{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_events_total",
			Help: "The total number of protocol events",
		}, []string{"event"}),
		reqCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_request_total",
			Help: "The total number of processed requests",
		}),
		errCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: service + "_errors_total",
			Help: "The total number of 500 responses",
		}),
		resTime: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: service + "_response_time",
			Help: "Response times",
		}),
	}
	for _, c := range []prometheus.Collector{m.events, m.reqCount, m.errCount, m.resTime} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *prom) Record(ev Event) {
	m.events.WithLabelValues(string(ev)).Inc()
}

func (m *prom) RecordRequest(resTime time.Duration, hasErr bool) {
	m.reqCount.Inc()
	m.resTime.Observe(resTime.Seconds())
	if hasErr {
		m.errCount.Inc()
	}
}

// Handler provides metrics middleware.
func Handler(m Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if m == nil {
			next.ServeHTTP(w, req)
			return
		}

		wrapW := &wrapResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		startTime := time.Now()
		next.ServeHTTP(wrapW, req)
		m.RecordRequest(time.Since(startTime), wrapW.statusCode == http.StatusInternalServerError)
	})
}

type wrapResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrapResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
