package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/log"
)

var channelLabelNames = []string{"channel", "channel_type", "direction"}

func newChannelGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, channelLabelNames)
}

// Exporter polls the modem on a fixed interval and keeps the last observed
// channel readings in its instruments. Channels that disappear from the
// status page keep their last value until the process restarts.
type Exporter struct {
	modem    *Modem
	interval time.Duration
	logger   log.Logger

	locked                 *prometheus.GaugeVec
	frequency              *prometheus.GaugeVec
	power                  *prometheus.GaugeVec
	snrMER                 *prometheus.GaugeVec
	unerroredCodewords     *prometheus.GaugeVec
	correctableCodewords   *prometheus.GaugeVec
	uncorrectableCodewords *prometheus.GaugeVec

	up                    prometheus.Gauge
	totalScrapes          prometheus.Counter
	failedScrapes         *prometheus.CounterVec
	genericFailures       prometheus.Counter
	stageFailures         *prometheus.CounterVec
	scrapeDuration        prometheus.Gauge
	clientRequestCount    *prometheus.CounterVec
	clientRequestDuration *prometheus.HistogramVec
}

func NewExporter(cfg Config, logger log.Logger) *Exporter {
	if logger == nil {
		logger = log.Base()
	}

	clientRequestCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exporter_client_requests_total",
		Help:      "HTTP requests to the modem.",
	}, []string{"code", "method"})

	clientRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "exporter_client_request_duration_seconds",
		Help:      "Histogram of modem HTTP request latencies.",
	}, []string{"code", "method"})

	transport := promhttp.InstrumentRoundTripperCounter(clientRequestCount,
		promhttp.InstrumentRoundTripperDuration(clientRequestDuration, http.DefaultTransport))

	return &Exporter{
		modem:    NewModem(modemBaseURL(cfg.ModemAddress), cfg.Username, cfg.Password, transport, cfg.Timeout()),
		interval: cfg.Interval(),
		logger:   logger,

		locked:                 newChannelGauge("locked", "Channel is locked (1) or not (0)."),
		frequency:              newChannelGauge("frequency_hz", "Channel frequency."),
		power:                  newChannelGauge("power_dbmv", "Channel power."),
		snrMER:                 newChannelGauge("snr_mer_db", "Channel SNR/MER."),
		unerroredCodewords:     newChannelGauge("unerrored_codewords", "Channel unerrored codewords."),
		correctableCodewords:   newChannelGauge("correctable_codewords", "Channel correctable codewords."),
		uncorrectableCodewords: newChannelGauge("uncorrectable_codewords", "Channel uncorrectable codewords."),

		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Was the last scrape of the modem successful.",
		}),
		totalScrapes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_scrapes_total",
			Help:      "Total number of times the modem status page was fetched.",
		}),
		failedScrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "total_failed_scrapes_total",
			Help:      "Total number of status page fetches answered with a non-200 status.",
		}, []string{"http_response_code"}),
		genericFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generic_failures_total",
			Help:      "Total number of failed scrape cycles.",
		}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exporter_scrape_failures_total",
			Help:      "Failed scrape cycles by pipeline stage.",
		}, []string{"stage"}),
		scrapeDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exporter_last_scrape_duration_seconds",
			Help:      "Duration of the last scrape cycle.",
		}),
		clientRequestCount:    clientRequestCount,
		clientRequestDuration: clientRequestDuration,
	}
}

func (e *Exporter) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		e.locked, e.frequency, e.power, e.snrMER,
		e.unerroredCodewords, e.correctableCodewords, e.uncorrectableCodewords,
		e.up, e.totalScrapes, e.failedScrapes, e.genericFailures, e.stageFailures,
		e.scrapeDuration, e.clientRequestCount, e.clientRequestDuration,
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range e.collectors() {
		c.Describe(ch)
	}
}

// Collect only reads; all writes happen in the poll loop.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, c := range e.collectors() {
		c.Collect(ch)
	}
}

// Run scrapes the modem every interval until ctx is cancelled. A failed
// cycle is logged and counted, never fatal.
func (e *Exporter) Run(ctx context.Context) {
	for {
		e.scrape(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.interval):
		}
	}
}

func (e *Exporter) scrape(ctx context.Context) {
	start := time.Now()
	err := e.scrapeOnce(ctx)
	e.scrapeDuration.Set(time.Since(start).Seconds())

	if err != nil {
		stage := failureStage(err)
		e.logger.With("stage", stage).Errorln("Scrape failed:", err)
		e.genericFailures.Inc()
		e.stageFailures.WithLabelValues(stage).Inc()
		e.up.Set(0)
		return
	}
	e.logger.Debugln("Successfully scraped metrics")
	e.up.Set(1)
}

func (e *Exporter) scrapeOnce(ctx context.Context) error {
	session, err := e.modem.Login(ctx)
	if err != nil {
		return err
	}

	body, err := session.FetchStatus(ctx)
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
			e.failedScrapes.WithLabelValues(strconv.Itoa(fetchErr.StatusCode)).Inc()
		}
		return err
	}
	e.totalScrapes.Inc()

	tables, err := parseStatusPage(bytes.NewReader(body))
	if err != nil {
		return err
	}
	result, err := buildScrapeResult(tables)
	if err != nil {
		return err
	}
	e.publish(result)
	return nil
}

// publish writes every channel of result into the channel gauges. Upstream
// records carry no Downstream readings, so only lock, frequency and power
// are set for them.
func (e *Exporter) publish(result *ScrapeResult) {
	for _, group := range result.Groups() {
		for _, rec := range group.Records() {
			labels := prometheus.Labels{
				"channel":      rec.Channel,
				"channel_type": string(group.Type),
				"direction":    string(group.Direction),
			}
			e.locked.With(labels).Set(rec.LockStatus.Value())
			e.frequency.With(labels).Set(rec.FrequencyHz)
			e.power.With(labels).Set(rec.PowerDBmV)

			if ds := rec.Downstream; ds != nil {
				e.snrMER.With(labels).Set(ds.SNRMER)
				e.unerroredCodewords.With(labels).Set(ds.UnerroredCodewords)
				e.correctableCodewords.With(labels).Set(ds.CorrectableCodewords)
				e.uncorrectableCodewords.With(labels).Set(ds.UncorrectableCodewords)
			}
		}
	}
}

func modemBaseURL(address string) string {
	if strings.Contains(address, "://") {
		return strings.TrimSuffix(address, "/")
	}
	return "http://" + address
}
