package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"casechain.org/internal/anchor"
	"casechain.org/internal/auth"
	"casechain.org/internal/docket"
	"casechain.org/internal/evidence"
	"casechain.org/internal/httpapi"
	"casechain.org/internal/obs"
	"casechain.org/internal/store/pg"
	"casechain.org/internal/stream"
	"casechain.org/internal/sweep"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	events := stream.New()

	// Anchor ledger client. Without an endpoint every record stays
	// unanchored, which keeps local development self-contained.
	var ledger anchor.Client
	if base := os.Getenv("CASECHAIN_ANCHOR_URL"); base != "" {
		client, err := anchor.NewHTTPClient(base)
		if err != nil {
			log.Fatalf("anchor client: %v", err)
		}
		ledger = client
	} else {
		log.Println("CASECHAIN_ANCHOR_URL not set, running without an anchor ledger")
	}

	// Postgres when a DSN is configured, in-memory stores otherwise.
	var (
		caseStore  docket.Store
		custStore  evidence.Store
		roleStore  auth.AssignmentStore
		pgStore    *pg.Store
		readyProbe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("CASECHAIN_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		caseStore = pgStore
		custStore = pgStore
		roleStore = pgStore.Assignments()
		readyProbe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("CASECHAIN_PG_DSN not set, using in-memory stores")
		caseStore = docket.NewInMemory()
		custStore = evidence.NewInMemory()
		roleStore = auth.NewMemoryAssignments()
	}

	registry, err := auth.NewRegistry(roleStore, ledger)
	if err != nil {
		log.Fatalf("role registry: %v", err)
	}
	// First admin has to come from the environment: every later grant
	// goes through the authenticated /v1/roles endpoint.
	if addr := os.Getenv("CASECHAIN_BOOTSTRAP_ADMIN"); addr != "" {
		if _, err := registry.Resolve(context.Background(), addr); errors.Is(err, auth.ErrNotFound) {
			if _, err := registry.Grant(context.Background(), addr, auth.RoleAdmin); err != nil {
				log.Fatalf("bootstrap admin: %v", err)
			}
			log.Printf("bootstrapped admin assignment for %s", addr)
		}
	}
	cases, err := docket.NewService(caseStore, docket.WithEvents(events))
	if err != nil {
		log.Fatalf("docket service: %v", err)
	}
	custody, err := evidence.NewService(custStore, caseStore, ledger, evidence.WithEvents(events))
	if err != nil {
		log.Fatalf("evidence service: %v", err)
	}

	// Background re-verification of anchored fingerprints.
	var stopSweep func()
	if ledger != nil {
		interval := 5 * time.Minute
		if raw := os.Getenv("CASECHAIN_SWEEP_INTERVAL_SEC"); raw != "" {
			if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
				interval = time.Duration(secs) * time.Second
			}
		}
		stopSweep = sweep.New(custody, interval).Start()
	}

	api := httpapi.New(readyProbe, version, registry, cases, custody, events)

	addr := os.Getenv("CASECHAIN_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting casechain-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if stopSweep != nil {
		stopSweep()
	}
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
