// Command multicam runs the multi-camera threat tracking pipeline: one agent
// per camera source and one global tracker, all connected through a shared
// in-process broker, with an HTTP API alongside.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sentinel-vision/multicam/internal/alertdb"
	"github.com/sentinel-vision/multicam/internal/api"
	"github.com/sentinel-vision/multicam/internal/broker"
	"github.com/sentinel-vision/multicam/internal/camera"
	"github.com/sentinel-vision/multicam/internal/config"
	"github.com/sentinel-vision/multicam/internal/timeutil"
	"github.com/sentinel-vision/multicam/internal/tracker"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	dbFile      = flag.String("db", "alerts.db", "Alert log database file (empty disables the log)")
	configFile  = flag.String("config", "", "Optional JSON tuning config")
	cameras     = flag.String("cameras", "cam0,cam1", "Comma-separated camera ids, one agent per id")
	migrations  = flag.String("migrations", "", "Optional migrations directory to apply to the alert log")
	emitEvery   = flag.Int("emit-every", 20, "Synthetic stack: emit a subject every N polls")
	numSubjects = flag.Int("subjects", 2, "Synthetic stack: number of distinct subjects across cameras")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cameraIDs := parseCameraList(*cameras)
	if len(cameraIDs) == 0 {
		log.Fatal("At least one camera id is required")
	}

	cfg := config.Empty()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	var db *alertdb.DB
	if *dbFile != "" {
		var err error
		db, err = alertdb.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open alert log: %v", err)
		}
		defer db.Close()
		if *migrations != "" {
			if err := db.MigrateUp(*migrations); err != nil {
				log.Fatalf("failed to migrate alert log: %v", err)
			}
		}
	}

	clock := timeutil.RealClock{}
	hub := broker.New(broker.Config{MaxQueueDepth: cfg.GetMaxQueueDepth()})
	defer hub.Close()

	global := tracker.New(hub, clock, tracker.Config{
		PollInterval:  cfg.GetTrackerPollInterval(),
		ShutdownGrace: cfg.GetShutdownGrace(),
	})
	if db != nil {
		global.SetAlertSink(db)
	}

	// Frame acquisition and the detection/embedding models are external to
	// the core; the bundled synthetic stack keeps the pipeline runnable
	// without video hardware. Cameras share subjects so cross-camera
	// re-identification actually fires.
	agentConfig := camera.Config{
		PollInterval:        cfg.GetCameraPollInterval(),
		SimilarityThreshold: cfg.GetSimilarityThreshold(),
		ShutdownGrace:       cfg.GetShutdownGrace(),
	}
	agents := make([]*camera.Agent, 0, len(cameraIDs))
	for i, id := range cameraIDs {
		source := &camera.SyntheticSource{
			Subject: byte(i%max(*numSubjects, 1) + 1),
			Every:   *emitEvery,
		}
		agent := camera.NewAgent(id, hub, source, camera.SyntheticDetector{},
			camera.SyntheticExtractor{Dim: cfg.GetEmbeddingDim()}, clock, agentConfig)
		agents = append(agents, agent)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		global.Run(ctx)
	}()

	for _, agent := range agents {
		wg.Add(1)
		go func(a *camera.Agent) {
			defer wg.Done()
			a.Run(ctx)
		}(agent)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(global, hub, db, agents).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownGrace())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("http server shutdown: %v", err)
		}
	}()

	log.Printf("multicam started: %d cameras, listening on %s", len(agents), *listen)
	<-ctx.Done()

	// bounded join: stop everything, report (not crash) on stragglers
	for _, agent := range agents {
		agent.Stop()
	}
	global.Stop()
	for _, agent := range agents {
		agent.Wait()
	}
	global.Wait()

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(cfg.GetShutdownGrace() + time.Second):
		log.Print("warning: some workers did not exit before shutdown deadline")
	}
	log.Print("multicam stopped")
}

func parseCameraList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}
