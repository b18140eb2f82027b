// Command gateway wires the realtime audio ingestion & transcription
// service together: ticket issuance, the WebSocket connection handler,
// administrative audio endpoints, and the Prometheus metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"asrgateway/pkg/admin"
	"asrgateway/pkg/archive"
	"asrgateway/pkg/asr"
	"asrgateway/pkg/authjwt"
	"asrgateway/pkg/config"
	"asrgateway/pkg/metrics"
	"asrgateway/pkg/objectstore"
	"asrgateway/pkg/session"
	"asrgateway/pkg/ticket"
	"asrgateway/pkg/wsserver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	verifier, err := authjwt.NewClerkVerifier(cfg.ClerkJWTKey, cfg.ClerkAuthorizedParties)
	if err != nil {
		log.Fatalf("gateway: construct JWT verifier: %v", err)
	}

	ticketStore, closeTicketStore, err := newTicketStore(cfg)
	if err != nil {
		log.Fatalf("gateway: construct ticket store: %v", err)
	}
	defer closeTicketStore()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	objectStore, err := newObjectStoreClient(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("gateway: construct object store client: %v", err)
	}

	reg, err := metrics.New()
	if err != nil {
		log.Fatalf("gateway: construct metrics registry: %v", err)
	}

	asrConfig := asr.Config{
		UseFireworks:    cfg.UseFireworks,
		GroqAPIKey:      cfg.GroqAPIKey,
		FireworksAPIKey: cfg.FireworksAPIKey,
		DebugMode:       cfg.DebugMode,
		Metrics:         reg,
	}
	archiveConfig := archive.DefaultConfig()
	archiveConfig.Metrics = reg

	sessionDeps := session.Deps{
		Tickets:       ticketStore,
		ObjectStore:   objectStore,
		ASRConfig:     asrConfig,
		ArchiveConfig: archiveConfig,
	}

	mux := http.NewServeMux()
	mux.Handle("/api/ws/ticket", ticket.NewIssuer(ticketStore, verifier))
	mux.Handle("/api/ws", wsserver.NewHandler(cfg.ClerkAuthorizedParties, sessionDeps))
	mux.Handle("/metrics", reg.Handler())

	adminRoutes := admin.NewHandler(objectStore, verifier).Routes()
	mux.Handle("/api/admin/", adminRoutes)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	go func() {
		log.Printf("gateway: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("gateway: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway: shutdown error: %v", err)
	}
	if err := reg.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway: metrics shutdown error: %v", err)
	}
}

// newObjectStoreClient dials AWS S3 via the default credential chain, or a
// custom S3-compatible endpoint (e.g. MinIO) with static credentials when
// OBJECT_STORE_ENDPOINT is set, for local and self-hosted deployments.
func newObjectStoreClient(ctx context.Context, cfg *config.Config) (objectstore.Client, error) {
	if cfg.ObjectStoreEndpoint == "" {
		return objectstore.NewS3Client(ctx, cfg.ObjectStoreBucket)
	}
	return objectstore.NewS3ClientWithEndpoint(ctx, cfg.ObjectStoreBucket, objectstore.EndpointOptions{
		Endpoint:     cfg.ObjectStoreEndpoint,
		Region:       cfg.ObjectStoreRegion,
		AccessKey:    cfg.ObjectStoreAccessKey,
		SecretKey:    cfg.ObjectStoreSecretKey,
		UsePathStyle: cfg.ObjectStoreUsePathStyle,
	})
}

func newTicketStore(cfg *config.Config) (ticket.Store, func(), error) {
	if cfg.TicketStoreBinding == "memory" {
		store := ticket.NewMemoryStore()
		return store, func() { store.Close() }, nil
	}
	store, err := ticket.NewRedisStore(cfg.TicketStoreBinding)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}
