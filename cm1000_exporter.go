package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/log"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	exporterName = "cm1000_exporter"
	namespace    = "netgear"
)

func main() {
	var (
		metricsPath = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()
		flags       = registerConfigFlags(kingpin.CommandLine)
	)

	log.AddFlags(kingpin.CommandLine)
	kingpin.Version(version.Print(exporterName))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	log.Infoln("Starting", exporterName, version.Info())
	log.Infoln("Build context", version.BuildContext())

	cfg, found, err := loadConfig(flags)
	if !found {
		log.Infof("Config file %s not found, using flags and environment", *flags.configFile)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Starting CM1000 exporter with config: %+v", cfg.Censored())

	exporter := NewExporter(cfg, log.Base())
	prometheus.MustRegister(exporter)
	prometheus.MustRegister(version.NewCollector(exporterName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go exporter.Run(ctx)

	http.Handle(*metricsPath, promhttp.Handler())
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
             <head><title>CM1000 Exporter</title></head>
             <body>
             <h1>CM1000 Exporter</h1>
             <p><a href='` + *metricsPath + `'>Metrics</a></p>
             </body>
             </html>`))
	})

	srv := &http.Server{Addr: cfg.ListenAddress()}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	log.Infoln("Listening on", srv.Addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
