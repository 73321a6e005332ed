package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncRitualsCompleted(qualifying bool)
	IncChatQuestions(outcome string)
	IncRemindersSent(n int)
}

// Chat question outcomes.
const (
	ChatAnswered = "answered"
	ChatBlocked  = "blocked"
	ChatFailed   = "failed"
)

type Provider struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	ritualsCompleted *prometheus.CounterVec
	chatQuestions    *prometheus.CounterVec
	remindersSent    prometheus.Counter
}

// New registers the collectors on reg, or returns a recorder that does
// nothing when metrics are disabled.
func New(enabled bool, reg prometheus.Registerer) Recorder {
	if !enabled {
		return Noop{}
	}

	factory := promauto.With(reg)
	return &Provider{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minuto_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minuto_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		ritualsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minuto_rituals_completed_total",
			Help: "Devotional sessions recorded, by whether they counted for the streak",
		}, []string{"qualifying"}),

		chatQuestions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minuto_chat_questions_total",
			Help: "Theological chat questions by outcome",
		}, []string{"outcome"}),

		remindersSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "minuto_reminders_sent_total",
			Help: "Daily reminders delivered on Telegram",
		}),
	}
}

func (m *Provider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *Provider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Provider) IncRitualsCompleted(qualifying bool) {
	m.ritualsCompleted.WithLabelValues(strconv.FormatBool(qualifying)).Inc()
}

func (m *Provider) IncChatQuestions(outcome string) {
	m.chatQuestions.WithLabelValues(outcome).Inc()
}

func (m *Provider) IncRemindersSent(n int) {
	m.remindersSent.Add(float64(n))
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop records nothing.
type Noop struct{}

func (Noop) IncRequestsTotal(string, int)                 {}
func (Noop) ObserveRequestDuration(string, time.Duration) {}
func (Noop) IncRitualsCompleted(bool)                     {}
func (Noop) IncChatQuestions(string)                      {}
func (Noop) IncRemindersSent(int)                         {}
