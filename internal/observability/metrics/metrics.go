package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "shopfloor_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	alarmChecksTotal  *prometheus.CounterVec
	alarmFiringsTotal prometheus.Counter
	recipientsCreated prometheus.Counter

	deliveryAttempts *prometheus.CounterVec
	deliveryLatency  *prometheus.HistogramVec

	outboxDepth *prometheus.GaugeVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		alarmChecksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_checks_total",
				Help: "Total orchestrator runs by result",
			},
			[]string{"result"},
		)
		alarmFiringsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_firings_total",
				Help: "Total alarm events created",
			},
		)
		recipientsCreated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_recipients_created_total",
				Help: "Total recipient rows created by firings",
			},
		)

		deliveryAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "delivery_attempts_total",
				Help: "Total delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		)
		deliveryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "delivery_latency_seconds",
				Help:    "Delivery attempt latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		)

		outboxDepth = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "recipient_outbox_depth",
				Help: "Recipient rows pending in the outbox by method",
			},
			[]string{"method"},
		)

		prometheus.MustRegister(
			alarmChecksTotal,
			alarmFiringsTotal,
			recipientsCreated,
			deliveryAttempts,
			deliveryLatency,
			outboxDepth,
		)

		if db != nil {
			go pollOutboxDepth(db, logger)
		}
	})
}

// IncAlarmCheck records one orchestrator run.
func IncAlarmCheck(result string) {
	if result == "" {
		result = resultSuccess
	}
	if alarmChecksTotal != nil {
		alarmChecksTotal.WithLabelValues(result).Inc()
	}
}

// IncAlarmFired records one created alarm event.
func IncAlarmFired() {
	if alarmFiringsTotal != nil {
		alarmFiringsTotal.Inc()
	}
}

// AddRecipientsCreated records recipient rows created by a firing.
func AddRecipientsCreated(n int) {
	if recipientsCreated != nil && n > 0 {
		recipientsCreated.Add(float64(n))
	}
}

// ObserveDelivery records one delivery attempt.
func ObserveDelivery(channel, result string, duration time.Duration) {
	if result == "" {
		result = resultError
	}
	if deliveryAttempts != nil {
		deliveryAttempts.WithLabelValues(channel, result).Inc()
	}
	if deliveryLatency != nil {
		deliveryLatency.WithLabelValues(channel).Observe(duration.Seconds())
	}
}

func pollOutboxDepth(db *sql.DB, logger *log.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		rows, err := db.Query(`
SELECT method, COUNT(*)
FROM alarm_recipients
WHERE status = 'outbox'
GROUP BY method`)
		if err != nil {
			if logger != nil {
				logger.Printf("outbox depth query error: %v", err)
			}
			continue
		}
		for rows.Next() {
			var method string
			var count float64
			if err := rows.Scan(&method, &count); err != nil {
				break
			}
			if outboxDepth != nil {
				outboxDepth.WithLabelValues(method).Set(count)
			}
		}
		rows.Close()
	}
}
