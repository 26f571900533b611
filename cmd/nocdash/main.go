package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crimson-sun/nocdash/internal/auth"
	"github.com/crimson-sun/nocdash/internal/config"
	"github.com/crimson-sun/nocdash/internal/engine"
	"github.com/crimson-sun/nocdash/internal/engine/classifier"
	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/logging"
	"github.com/crimson-sun/nocdash/internal/output"
	"github.com/crimson-sun/nocdash/internal/output/async"
	"github.com/crimson-sun/nocdash/internal/output/file"
	"github.com/crimson-sun/nocdash/internal/output/influx"
	"github.com/crimson-sun/nocdash/internal/output/mqtt"
	"github.com/crimson-sun/nocdash/internal/output/multi"
	"github.com/crimson-sun/nocdash/internal/output/stdout"
	"github.com/crimson-sun/nocdash/internal/output/webhook"
	"github.com/crimson-sun/nocdash/internal/pipeline"
	"github.com/crimson-sun/nocdash/internal/qa"
	"github.com/crimson-sun/nocdash/internal/session"
	"github.com/crimson-sun/nocdash/internal/store"
	"github.com/crimson-sun/nocdash/internal/web"
)

const sessionPruneInterval = 10 * time.Minute

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		hashPassword()
		return
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("nocdash: %v", err)
	}
	logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	verbosity, err := output.ParseVerbosity(cfg.Output.Verbosity)
	if err != nil {
		log.Fatalf("nocdash: %v", err)
	}

	// Profiles and optional rule overrides.
	profiles := rules.DefaultProfiles()
	if cfg.Engine.RulesPath != "" {
		if err := rules.LoadOverrides(cfg.Engine.RulesPath, profiles); err != nil {
			log.Fatalf("nocdash: %v", err)
		}
	}
	catalog, err := rules.NewCatalog(profiles)
	if err != nil {
		log.Fatalf("nocdash: %v", err)
	}
	if _, ok := catalog.Lookup(cfg.Engine.Profile); !ok {
		log.Fatalf("nocdash: unknown profile %q (have %s)", cfg.Engine.Profile, strings.Join(catalog.Names(), ", "))
	}

	// Classifier. A missing or broken model leaves the threshold verdict.
	var eng *engine.Engine
	cls, err := classifier.New(cfg.Engine.ModelPath, cfg.Engine.ScalerPath, cfg.Engine.ORTLib)
	if err != nil {
		slog.Warn("classifier unavailable, using thresholds only", "error", err)
		eng = engine.New(catalog, nil, err)
	} else {
		defer cls.Close()
		slog.Info("classifier loaded", "model", cfg.Engine.ModelPath, "features", len(cls.Features()))
		eng = engine.New(catalog, cls, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("nocdash: %v", err)
	}
	defer st.Close()
	if v, err := st.SchemaVersion(ctx); err == nil {
		slog.Info("report store ready", "path", cfg.Store.DBPath, "schema_version", v)
	}

	sinks := buildSinks(ctx, cfg.Output, verbosity)
	p := pipeline.New(st, sinks)
	defer p.Close()

	asker := qa.New(qa.Config{
		APIKey:   cfg.LLM.APIKey,
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})

	var authn web.Authenticator
	if cfg.Auth.Enabled() {
		users, err := auth.LoadUsers(cfg.Auth.UsersPath)
		if err != nil {
			log.Fatalf("nocdash: %v", err)
		}
		m, err := auth.New(users, cfg.Auth.JWTSecret, auth.WithTTL(cfg.Auth.TokenTTL))
		if err != nil {
			log.Fatalf("nocdash: %v", err)
		}
		authn = m
		slog.Info("login enabled", "users", len(users))
	}

	sessions := session.NewManager(cfg.Engine.Profile, session.WithIdleTimeout(cfg.Auth.TokenTTL))
	go pruneSessions(ctx, sessions)

	srv, err := web.New(web.Deps{
		Engine:      eng,
		Store:       st,
		Saver:       p,
		Asker:       asker,
		Sessions:    sessions,
		Auth:        authn,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		log.Fatalf("nocdash: %v", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("nocdash listening", "addr", cfg.Server.Addr, "profile", cfg.Engine.Profile)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}

// buildSinks assembles the configured report sinks. A sink that cannot be
// created is logged and skipped; the store stays authoritative.
func buildSinks(ctx context.Context, cfg config.OutputConfig, verbosity output.Verbosity) output.Output {
	var outs []output.Output

	if cfg.ArchivePath != "" {
		var opts []file.Option
		if cfg.ArchiveMaxBytes > 0 {
			opts = append(opts, file.WithMaxSize(cfg.ArchiveMaxBytes))
		}
		f, err := file.New(cfg.ArchivePath, verbosity, opts...)
		if err != nil {
			slog.Warn("archive sink disabled", "path", cfg.ArchivePath, "error", err)
		} else {
			outs = append(outs, f)
		}
	}

	if cfg.WebhookURL != "" {
		var opts []webhook.Option
		if cfg.WebhookToken != "" {
			opts = append(opts, webhook.WithToken(cfg.WebhookToken))
		}
		opts = append(opts, webhook.WithVerbosity(verbosity))
		outs = append(outs, async.New(webhook.New(cfg.WebhookURL, opts...), async.WithName("webhook")))
	}

	if cfg.MQTTBroker != "" {
		opts := []mqtt.Option{mqtt.WithVerbosity(verbosity)}
		if cfg.MQTTUsername != "" {
			opts = append(opts, mqtt.WithCredentials(cfg.MQTTUsername, cfg.MQTTPassword))
		}
		m, err := mqtt.New(cfg.MQTTBroker, cfg.MQTTTopic, opts...)
		if err != nil {
			slog.Warn("mqtt sink disabled", "broker", cfg.MQTTBroker, "error", err)
		} else {
			outs = append(outs, async.New(m, async.WithName("mqtt")))
		}
	}

	if cfg.InfluxURL != "" {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		in, err := influx.New(healthCtx, cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		cancel()
		if err != nil {
			slog.Warn("influx sink disabled", "url", cfg.InfluxURL, "error", err)
		} else {
			outs = append(outs, in)
		}
	}

	if cfg.Stdout {
		outs = append(outs, stdout.New(verbosity, cfg.Pretty))
	}

	if len(outs) == 0 {
		return nil
	}
	slog.Info("report sinks configured", "count", len(outs))
	return multi.New(outs...)
}

func pruneSessions(ctx context.Context, m *session.Manager) {
	t := time.NewTicker(sessionPruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Prune(); n > 0 {
				slog.Debug("pruned idle sessions", "count", n)
			}
		}
	}
}

// hashPassword reads a password from stdin and prints its bcrypt hash for
// the users file.
func hashPassword() {
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatalf("nocdash: read password: %v", err)
	}
	hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		log.Fatalf("nocdash: %v", err)
	}
	fmt.Println(hash)
}
