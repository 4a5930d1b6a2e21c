package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"procuredata.io/internal/admin"
	"procuredata.io/internal/auth"
	"procuredata.io/internal/config"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/demo"
	"procuredata.io/internal/health"
	"procuredata.io/internal/httpapi"
	"procuredata.io/internal/identity"
	"procuredata.io/internal/mail"
	"procuredata.io/internal/notify"
	"procuredata.io/internal/obs"
	"procuredata.io/internal/store/memory"
	"procuredata.io/internal/store/pg"
	"procuredata.io/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "procuredata-api",
		Short:         "ProcureData data space API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				configPath = os.Getenv("PROCUREDATA_CONFIG")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file (default $PROCUREDATA_CONFIG)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "procuredata-api: %v\n", err)
		os.Exit(1)
	}
}

// backend bundles the store with the user directory and the readiness probe.
type backend struct {
	store     dataspace.Store
	directory identity.Directory
	probe     health.Checker
	close     func() error
}

func openBackend(cfg config.Config, log *zap.Logger) (backend, error) {
	if cfg.Database.DSN == "" {
		log.Warn("no database configured, serving the in-memory demo data set")
		st := memory.New()
		demo.Scenario().Load(st)
		return backend{store: st, directory: st, probe: health.Probe{}, close: func() error { return nil }}, nil
	}
	st, err := pg.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return backend{}, err
	}
	return backend{store: st, directory: st, probe: health.Probe{DB: st.DB()}, close: st.Close}, nil
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := obs.InitLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	be, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	directory := be.directory
	if cfg.Identity.URL != "" {
		directory = identity.NewAdminClient(cfg.Identity.URL, cfg.Identity.ServiceKey)
	}

	var sender mail.Sender = mail.NewLogSender(log.Named("mail"))
	if cfg.Mail.APIKey != "" {
		sender = mail.NewResendClient(cfg.Mail.APIURL, cfg.Mail.APIKey, cfg.Mail.From, &http.Client{Timeout: cfg.Mail.SendTimeout})
	}

	tokens := auth.TokenConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   30 * time.Second,
	}
	verifier, err := auth.NewVerifier(tokens)
	if err != nil {
		return fmt.Errorf("jwt verifier: %w", err)
	}

	hub := stream.New()
	dispatcher := notify.NewDispatcher(be.store, directory, sender, notify.Options{
		SiteURL:     cfg.SiteURL,
		SendTimeout: cfg.Mail.SendTimeout,
		Concurrency: cfg.Mail.Concurrency,
		Publisher:   hub,
		Logger:      log.Named("notify"),
	})

	api := httpapi.New(httpapi.Deps{
		Store:         be.store,
		Workflow:      dataspace.NewService(be.store, dispatcher),
		Dispatcher:    dispatcher,
		Admin:         admin.NewService(be.store, directory),
		Hub:           hub,
		Verifier:      verifier,
		Probe:         be.probe,
		Version:       version,
		CORSOrigins:   cfg.CORS.AllowedOrigins,
		RateBurst:     cfg.RateLimit.Burst,
		RatePerSecond: cfg.RateLimit.PerSecond,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	hc := health.NewGRPCServer()
	hc.Register(grpcSrv)

	var lis net.Listener
	if cfg.GRPC.Addr != "" {
		if lis, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", httpSrv.Addr), zap.String("version", version))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if lis != nil {
		g.Go(func() error {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
			return grpcSrv.Serve(lis)
		})
	}
	g.Go(func() error {
		hc.Watch(gctx, be.probe, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}
