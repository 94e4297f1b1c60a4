package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowd/config"
	"escrowd/escrow"
	"escrowd/events"
	"escrowd/observability/logging"
	"escrowd/rpc"
	"escrowd/state"
	"escrowd/storage"
	"escrowd/token"
)

func main() {
	configPath := flag.String("config", "escrowd.toml", "path to the service configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.Setup(cfg.ServiceName, cfg.Env)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(token.NewBookLedger())
	engine.SetEmitter(&events.MemoryEmitter{})
	// The daemon runs behind the RPC bearer check; principal proofs are the
	// gateway's concern, so in-process authorization always passes.
	engine.SetAuthorizer(escrow.AuthorizerFunc(func([20]byte) error { return nil }))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("starting metrics server", "addr", cfg.MetricsAddress)
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			log.Error("metrics server stopped", "err", err)
		}
	}()

	server := rpc.NewServer(engine, os.Getenv(cfg.AuthTokenEnv), log)
	go func() {
		if err := server.Start(cfg.ListenAddress); err != nil {
			log.Error("rpc server stopped", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
}
