package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/weaver/internal/analysis"
	"github.com/fyrsmithlabs/weaver/internal/config"
	"github.com/fyrsmithlabs/weaver/internal/httpapi"
	"github.com/fyrsmithlabs/weaver/internal/inference"
	"github.com/fyrsmithlabs/weaver/internal/logging"
	"github.com/fyrsmithlabs/weaver/internal/plan"
	gitprovider "github.com/fyrsmithlabs/weaver/internal/providers/git"
	"github.com/fyrsmithlabs/weaver/internal/resource"
	"github.com/fyrsmithlabs/weaver/internal/session"
	"github.com/fyrsmithlabs/weaver/internal/telemetry"
	"github.com/fyrsmithlabs/weaver/internal/toolproto"
)

var (
	configPath    string
	resourcesPath string
	userIntent    string
	project       string
	autoConfirm   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a discovery manifest end to end",
	Long: `Run consumes a discovery manifest, analyzes each resource, waits
for confirmation (or auto-confirms approved plans), and executes accepted
plans. The status API stays up until every resource reaches a terminal
state.

Examples:

  # Analyze and execute with manual confirmation via the status API
  weaver run --resources discovered.json --intent "add caching"

  # Headless: auto-confirm approved plans
  weaver run --resources discovered.json --intent "add caching" --auto-confirm`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	runCmd.Flags().StringVar(&resourcesPath, "resources", "", "path to discovery manifest (JSON)")
	runCmd.Flags().StringVar(&userIntent, "intent", "", "what the integration should accomplish")
	runCmd.Flags().StringVar(&project, "project", "", "target project identifier")
	runCmd.Flags().BoolVar(&autoConfirm, "auto-confirm", false, "accept approved plans without waiting")
	_ = runCmd.MarkFlagRequired("resources")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if autoConfirm {
		cfg.Session.AutoConfirm = true
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "telemetry shutdown", zap.Error(err))
		}
	}()

	logger.Info(ctx, "starting weaver",
		zap.String("version", version),
		zap.String("resources", resourcesPath),
		zap.Bool("auto_confirm", cfg.Session.AutoConfirm),
	)

	sess, registry, err := buildPipeline(cfg, logger, tel)
	if err != nil {
		return err
	}

	var srv *httpapi.Server
	if cfg.Server.Enabled {
		srv, err = httpapi.NewServer(cfg.Server, sess, registry, logger.Named("http"))
		if err != nil {
			return fmt.Errorf("creating status server: %w", err)
		}
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "status server failed", zap.Error(err))
				cancel()
			}
		}()
	}

	discovered, err := readManifest(resourcesPath)
	if err != nil {
		return err
	}

	// Feed the stream concurrently with consumption so manifests larger
	// than the source buffer do not stall before Run starts draining.
	src := resource.NewSource(cfg.Session.SourceBuffer)
	feedErr := make(chan error, 1)
	go func() {
		defer src.Close()
		feedErr <- feedSource(ctx, src, discovered)
	}()

	projectContext := map[string]any{}
	if project != "" {
		projectContext["project"] = project
	}

	runErr := sess.Run(ctx, src, userIntent, projectContext)
	if err := <-feedErr; err != nil && runErr == nil {
		runErr = err
	}
	sess.Close()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ctx, "status server shutdown", zap.Error(err))
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	reportOutcomes(ctx, logger, sess)
	return nil
}

// buildPipeline wires the provider registry, transports, tool client,
// analysis coordinator, plan executor, and session together.
func buildPipeline(cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry) (*session.Session, *toolproto.Registry, error) {
	registry := toolproto.NewRegistry()
	mux := toolproto.NewTransportMux(toolproto.NewMCPTransport("weaver", version))

	if err := inference.RegisterProvider(registry, cfg.Inference); err != nil {
		return nil, nil, err
	}
	inferTransport, err := inference.NewTransport(cfg.Inference)
	if err != nil {
		return nil, nil, fmt.Errorf("creating inference transport: %w", err)
	}
	mux.Handle(inference.ProviderName, inferTransport)

	if err := gitprovider.RegisterProvider(registry, mux); err != nil {
		return nil, nil, err
	}

	for _, p := range cfg.Providers {
		if err := registry.Register(toolproto.NewProvider(p.Name, p.Endpoint, p.Operations...)); err != nil {
			return nil, nil, err
		}
	}

	routes := make(analysis.ProviderMap, len(cfg.Routing))
	for kind, providerName := range cfg.Routing {
		stepKind := plan.StepKind(kind)
		if !stepKind.Valid() {
			return nil, nil, fmt.Errorf("routing references unknown step kind %q", kind)
		}
		if _, ok := registry.Get(providerName); !ok {
			return nil, nil, fmt.Errorf("routing for %q references unregistered provider %q", kind, providerName)
		}
		routes[stepKind] = providerName
	}

	tools := toolproto.NewClient(cfg.ToolClient, registry, mux,
		toolproto.WithLogger(logger.Named("toolproto")),
		toolproto.WithTracer(tel.Tracer("toolproto")),
	)

	infer := inference.NewClient(tools, cfg.Inference.Timeout.Duration())

	coordinator := analysis.NewCoordinator(cfg.Coordinator,
		analysis.DefaultStages(infer, routes),
		analysis.WithCoordinatorLogger(logger.Named("analysis")),
		analysis.WithCoordinatorTracer(tel.Tracer("analysis")),
	)

	executor := plan.NewExecutor(cfg.Executor, tools,
		plan.WithExecutorLogger(logger.Named("executor")),
		plan.WithExecutorTracer(tel.Tracer("executor")),
	)

	sess := session.New(cfg.Session, coordinator, executor,
		session.WithLogger(logger.Named("session")),
		session.WithTracer(tel.Tracer("session")),
	)

	return sess, registry, nil
}

// manifestEntry is one discovered resource in the input manifest. Entries
// without an ID get one assigned.
type manifestEntry struct {
	ID               string         `json:"id"`
	Kind             resource.Kind  `json:"kind"`
	Locator          string         `json:"locator"`
	DiscoveryContext map[string]any `json:"discovery_context"`
}

// readManifest parses the manifest into validated resources, assigning IDs
// to entries without one.
func readManifest(path string) ([]resource.Resource, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var entries []manifestEntry
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest %s lists no resources", path)
	}

	out := make([]resource.Resource, 0, len(entries))
	for i, e := range entries {
		res := resource.Resource{
			ID:               e.ID,
			Kind:             e.Kind,
			Locator:          e.Locator,
			DiscoveryContext: e.DiscoveryContext,
		}
		if res.ID == "" {
			res, err = resource.New(e.Kind, e.Locator, e.DiscoveryContext)
			if err != nil {
				return nil, fmt.Errorf("manifest entry %d: %w", i, err)
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// feedSource appends every discovered resource to the stream.
func feedSource(ctx context.Context, src *resource.Source, discovered []resource.Resource) error {
	for _, res := range discovered {
		if err := src.Append(ctx, res); err != nil {
			return fmt.Errorf("queueing resource %s: %w", res.ID, err)
		}
	}
	return nil
}

// reportOutcomes logs the terminal state of every tracked resource.
func reportOutcomes(ctx context.Context, logger *logging.Logger, sess *session.Session) {
	for _, snap := range sess.Snapshots() {
		logger.Info(ctx, "resource finished",
			zap.String("resource_id", snap.ResourceID),
			zap.String("state", string(snap.State)),
		)
	}
}
