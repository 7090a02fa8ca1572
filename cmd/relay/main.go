package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/audit"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/relay"
	"main/internal/relay/domains"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("relay: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	domainFlag := flag.String("domain", "", "relay domain: market|signal|execution")
	configFlag := flag.String("config", "", "JSON config file path")
	socketFlag := flag.String("socket", "", "socket path override")
	pyroscopeFlag := flag.String("pyroscope", "", "pyroscope server address override")
	metricsFlag := flag.String("metrics-addr", "", "prometheus listen address override")
	flag.Parse()

	name := strings.TrimSpace(*domainFlag)
	if name == "" {
		return fmt.Errorf("missing domain; use -domain market|signal|execution")
	}

	loaded, err := ops.Load(*configFlag)
	if err != nil {
		return err
	}
	if *socketFlag != "" {
		loaded.Relay.SocketPath = *socketFlag
	}
	if *pyroscopeFlag != "" {
		loaded.PyroscopeAddr = *pyroscopeFlag
	}
	if *metricsFlag != "" {
		loaded.MetricsAddr = *metricsFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		cancel()
	}()

	metrics := obs.NewMetrics()

	logic, cleanup, err := buildLogic(ctx, name, loaded)
	if err != nil {
		return err
	}
	defer cleanup()

	if loaded.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "relay." + name,
			ServerAddress:   loaded.PyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	if loaded.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(obs.NewCollector(metrics, logic.Identity()))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(loaded.MetricsAddr, mux); err != nil {
				logs.Errorf("metrics endpoint: %v", err)
			}
		}()
	}

	r, err := relay.New(logic, loaded.Relay, metrics)
	if err != nil {
		return err
	}
	return r.Start(ctx)
}

// buildLogic resolves the domain policy and its socket path. The
// returned cleanup stops domain collaborators (the audit store).
func buildLogic(ctx context.Context, name string, loaded ops.Loaded) (relay.Logic, func(), error) {
	noop := func() {}
	path := func(identity string) string {
		if loaded.Relay.SocketPath != "" {
			return loaded.Relay.SocketPath
		}
		return domains.DefaultSocketPath(loaded.SocketDir, identity)
	}

	switch name {
	case "market", "market_data":
		return domains.NewMarket(path("market_data")), noop, nil
	case "signal", "signals":
		return domains.NewSignal(path("signals")), noop, nil
	case "execution":
		var sink domains.AuditSink
		cleanup := noop
		if loaded.AuditDSN != "" {
			store, err := audit.Open(loaded.AuditDSN, 0)
			if err != nil {
				return nil, noop, err
			}
			auditCtx, stop := context.WithCancel(ctx)
			go store.Run(auditCtx)
			cleanup = func() {
				stop()
				if err := store.Close(); err != nil {
					logs.Errorf("audit close: %v", err)
				}
				if n := store.Drops(); n > 0 {
					logs.Warnf("audit dropped %d records under load", n)
				}
			}
			sink = store
		}
		return domains.NewExecution(path("execution"), sink), cleanup, nil
	default:
		return nil, noop, fmt.Errorf("unknown domain %q", name)
	}
}
