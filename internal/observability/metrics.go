package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	httpRequestsTotal   *prometheus.CounterVec
	httpLatencySeconds  *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec

	sseClientsActive        prometheus.Gauge
	monitorClientsActive    prometheus.Gauge
	questionEventsPublished *prometheus.CounterVec
	submissionsGraded       *prometheus.CounterVec
	submissionScores        prometheus.Histogram
	autoSubmissionsTotal    prometheus.Counter
	draftSavesTotal         *prometheus.CounterVec
	uploadLatencySeconds    prometheus.Histogram
	uploadRejectedTotal     *prometheus.CounterVec
	uploadRequestsTotal     *prometheus.CounterVec
	jobRunsTotal            *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_http_requests_total",
			Help: "Requests served, labelled by surface (student or admin).",
		}, []string{"surface", "method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quiz_http_latency_seconds",
			Help:    "Latency distribution per route.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"surface", "method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_http_errors_total",
			Help: "Error responses, labelled by surface and status.",
		}, []string{"surface", "method", "route", "status"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_question_stream_clients",
			Help: "Number of students subscribed to question change streams.",
		})

		monitorClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quiz_monitor_clients",
			Help: "Number of admin websocket clients watching live sessions.",
		})

		questionEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_question_events_total",
			Help: "Question change events published, labelled by transport.",
		}, []string{"transport"})

		submissionsGraded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_submissions_graded_total",
			Help: "Submissions graded, labelled by manual or auto submit.",
		}, []string{"mode"})

		submissionScores = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_submission_score",
			Help:    "Distribution of normalized submission scores.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		})

		autoSubmissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_auto_submissions_total",
			Help: "Sessions submitted automatically after their deadline.",
		})

		draftSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_draft_saves_total",
			Help: "Draft autosave attempts, labelled by outcome.",
		}, []string{"result"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_upload_latency_seconds",
			Help:    "Latency distribution for question image uploads.",
			Buckets: prometheus.DefBuckets,
		})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_upload_rejected_total",
			Help: "Rejected uploads, labelled by reason.",
		}, []string{"reason"})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_upload_requests_total",
			Help: "Accepted uploads, labelled by mime type.",
		}, []string{"type"})

		jobRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_job_runs_total",
			Help: "Scheduled job executions, labelled by job and outcome.",
		}, []string{"job", "result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			sseClientsActive,
			monitorClientsActive,
			questionEventsPublished,
			submissionsGraded,
			submissionScores,
			autoSubmissionsTotal,
			draftSavesTotal,
			uploadLatencySeconds,
			uploadRejectedTotal,
			uploadRequestsTotal,
			jobRunsTotal,
		)
	})
}

// HTTPRequests counts served requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency records request latency.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors counts 4xx and 5xx responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// SSEClientsActive tracks open question change streams.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// MonitorClientsActive tracks open admin live monitor sockets.
func MonitorClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return monitorClientsActive
}

// QuestionEventsPublished counts question change fan-out per transport.
func QuestionEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return questionEventsPublished
}

// SubmissionsGraded counts graded submissions.
func SubmissionsGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsGraded
}

// SubmissionScores records the normalized scores.
func SubmissionScores() prometheus.Histogram {
	RegisterMetrics()
	return submissionScores
}

// AutoSubmissions counts deadline-triggered submissions.
func AutoSubmissions() prometheus.Counter {
	RegisterMetrics()
	return autoSubmissionsTotal
}

// DraftSaves counts draft autosave outcomes.
func DraftSaves() *prometheus.CounterVec {
	RegisterMetrics()
	return draftSavesTotal
}

// UploadLatency exposes the upload latency histogram.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// UploadRejected counts rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadRequests counts accepted uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// JobRuns counts scheduled job executions.
func JobRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return jobRunsTotal
}
