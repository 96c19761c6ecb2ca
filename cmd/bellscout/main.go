// CLAUDE:SUMMARY CLI entry point for bellscout — one-shot and batch acquisition, HTTP/MCP serve mode, pattern admin and audits.
// Command bellscout finds and files school bell schedules.
//
// Usage:
//
//	bellscout -config bellscout.yaml -key 0612345 -url https://springfield.k12.ca.us -name Springfield -state CA
//	bellscout -config bellscout.yaml -batch districts.yaml
//	bellscout -config bellscout.yaml -serve :8080 [-mcp]
//	bellscout -config bellscout.yaml -mcp
//	bellscout -config bellscout.yaml -review | -effective | -approve GLOB | -reject GLOB
//	bellscout -config bellscout.yaml -audit claims.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/bellscout/acquire"
	"github.com/hazyhaar/bellscout/dbopen"
	"github.com/hazyhaar/bellscout/shield"
	"github.com/hazyhaar/bellscout/verify"
)

type options struct {
	configPath string

	key, url, name, state string
	batch                 string

	serve string
	mcp   bool

	review, effective bool
	approve, reject   string
	audit             string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to bellscout.yaml")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.StringVar(&o.key, "key", "", "district key (one-shot job)")
	flag.StringVar(&o.url, "url", "", "district website (one-shot job)")
	flag.StringVar(&o.name, "name", "", "district name")
	flag.StringVar(&o.state, "state", "", "district state")
	flag.StringVar(&o.batch, "batch", "", "YAML list of {key,url,name,state} to run")
	flag.StringVar(&o.serve, "serve", "", "HTTP listen address, e.g. :8080")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools on stdio")
	flag.BoolVar(&o.review, "review", false, "print the pattern review queue and exit")
	flag.BoolVar(&o.effective, "effective", false, "print the effective globs and exit")
	flag.StringVar(&o.approve, "approve", "", "approve a learned pattern and exit")
	flag.StringVar(&o.reject, "reject", "", "reject (delete) a learned pattern and exit")
	flag.StringVar(&o.audit, "audit", "", "YAML map of job key to claimed document count; audit and exit")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("bellscout: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o.configPath)
	if err != nil {
		return err
	}

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	svc, err := acquire.New(ctx, db, cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()
	ps := svc.Patterns()

	switch {
	case o.review:
		queue, err := ps.Review(ctx)
		if err != nil {
			return err
		}
		return printJSON(queue)
	case o.effective:
		eff, err := ps.Effective(ctx)
		if err != nil {
			return err
		}
		return printJSON(eff)
	case o.approve != "":
		p, err := ps.Approve(ctx, o.approve)
		if err != nil {
			return err
		}
		return printJSON(p)
	case o.reject != "":
		return ps.Reject(ctx, o.reject)
	case o.audit != "":
		return audit(ctx, logger, svc, cfg.OutputRoot, o.audit)
	case o.key != "" || o.url != "":
		return oneShot(ctx, svc, o)
	case o.batch != "":
		entries, err := acquire.LoadBatchFile(o.batch)
		if err != nil {
			return err
		}
		results, err := svc.RunBatch(ctx, entries)
		if err != nil {
			return err
		}
		return printJSON(results)
	case o.serve != "" || o.mcp:
		return serve(ctx, logger, svc, o)
	}
	flag.Usage()
	return errors.New("no mode selected")
}

func oneShot(ctx context.Context, svc *acquire.Service, o options) error {
	if o.key == "" || o.url == "" {
		return errors.New("-key and -url go together")
	}
	if _, err := svc.Start(ctx, o.key, acquire.Request{URL: o.url, Name: o.name, State: o.state}); err != nil {
		return err
	}
	svc.Wait(o.key)
	job, err := svc.Status(context.WithoutCancel(ctx), o.key)
	if err != nil {
		return err
	}
	if err := printJSON(job); err != nil {
		return err
	}
	if job.Status == acquire.StatusFailed {
		return fmt.Errorf("job failed at %s: %s", job.Stage, job.Error)
	}
	return nil
}

func audit(ctx context.Context, logger *slog.Logger, svc *acquire.Service, root, claimsPath string) error {
	data, err := os.ReadFile(claimsPath)
	if err != nil {
		return fmt.Errorf("read claims: %w", err)
	}
	var claims map[string]int
	if err := yaml.Unmarshal(data, &claims); err != nil {
		return fmt.Errorf("parse claims: %w", err)
	}

	a := verify.NewAuditor(svc, logger)
	byClaims, err := a.AuditManifests(ctx, root, claims)
	if err != nil {
		return err
	}
	byAttempts, err := a.AuditAttempts(ctx, root)
	if err != nil {
		return err
	}
	return printJSON(append(byClaims, byAttempts...))
}

func serve(ctx context.Context, logger *slog.Logger, svc *acquire.Service, o options) error {
	g, gctx := errgroup.WithContext(ctx)

	if o.mcp {
		srv := mcp.NewServer(&mcp.Implementation{Name: "bellscout", Version: "1.0.0"}, nil)
		svc.RegisterMCP(srv)
		g.Go(func() error {
			logger.Info("bellscout: MCP on stdio")
			if err := srv.Run(gctx, &mcp.StdioTransport{}); err != nil && gctx.Err() == nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		})
	}

	if o.serve != "" {
		hs := &http.Server{
			Addr:              o.serve,
			Handler:           router(logger, svc),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		g.Go(func() error {
			logger.Info("bellscout: server starting", "addr", o.serve)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("bellscout: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// router wraps the acquisition API in the shield middleware stack.
func router(logger *slog.Logger, svc *acquire.Service) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(logger) {
		r.Use(mw)
	}
	r.Mount("/", svc.Handler())
	return r
}

func resolveConfig(path string) (*acquire.Config, error) {
	cfg := &acquire.Config{}
	if path != "" {
		c, err := acquire.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	setEnv(&cfg.OutputRoot, "BELLSCOUT_OUTPUT_ROOT", "output")
	setEnv(&cfg.DBPath, "BELLSCOUT_DB", "db/bellscout.db")
	setEnv(&cfg.Mapper.BaseURL, "BELLSCOUT_MAPPER_URL", "")
	setEnv(&cfg.Render.BaseURL, "BELLSCOUT_RENDER_URL", "")
	setEnv(&cfg.LLM.Provider, "BELLSCOUT_LLM_PROVIDER", "")
	return cfg, nil
}

// setEnv fills an unset field from the environment, then from def.
func setEnv(field *string, key, def string) {
	if *field == "" {
		*field = env(key, def)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
