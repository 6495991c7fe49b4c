package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensuse-zypp/zyppcore/pkg/config"
	zyppcontext "github.com/opensuse-zypp/zyppcore/pkg/context"
	"github.com/opensuse-zypp/zyppcore/pkg/credentials"
	"github.com/opensuse-zypp/zyppcore/pkg/keyring"
	"github.com/opensuse-zypp/zyppcore/pkg/mirrorlist"
	"github.com/opensuse-zypp/zyppcore/pkg/packageprovider"
	"github.com/opensuse-zypp/zyppcore/pkg/provider"
	"github.com/opensuse-zypp/zyppcore/pkg/repomanager"
	"github.com/opensuse-zypp/zyppcore/pkg/reports"
	"github.com/opensuse-zypp/zyppcore/pkg/repostatus"
	"github.com/opensuse-zypp/zyppcore/pkg/signature"
	"github.com/opensuse-zypp/zyppcore/pkg/telemetry/metrics"
	"github.com/opensuse-zypp/zyppcore/pkg/variables"
)

// app bundles the wired dependency graph every command handler shares.
// Constructed once per invocation from the loaded configuration, overridden
// by whichever of the --root/--lock-timeout/--read-only/--non-interactive
// persistent flags the caller actually set.
type app struct {
	cfg      *config.Config
	ctx      *zyppcontext.Context
	manager  *repomanager.Manager
	keys     *keyring.KeyRing
	creds    *credentials.Manager
	sigFlow  *signature.Workflow
	registry *provider.Registry
	provide  *packageprovider.PackageProvider
	mirrors  *mirrorlist.Fetcher
	download *repomanager.HTTPDownloader
	verifier *repomanager.DefaultVerifier
	logger   *slog.Logger
	metrics  *metrics.Collector
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	applyFlagOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	logger := slog.New(newLogHandler(cfg.Logging))

	collector := metrics.NewCollector(&metrics.Config{Enabled: true}, nil)

	zctx := zyppcontext.New()
	lockStart := time.Now()
	err = zctx.Initialize(zyppcontext.Settings{
		Root:        cfg.Target.Root,
		LockTimeout: cfg.Locking.Timeout,
		ReadOnly:    cfg.Target.ReadOnly,
	})
	collector.RecordLockWait("main", time.Since(lockStart))
	if err != nil {
		return nil, fmt.Errorf("initialize context: %w", err)
	}
	collector.SetLockHeld("main", !cfg.Target.ReadOnly)

	varDir := filepath.Join(zctx.Root(), "var/lib/zypp")
	cacheDir := filepath.Join(zctx.Root(), cfg.Target.CacheDir)

	keys, err := keyring.New(filepath.Join(varDir, "KeyRing"))
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	// Credentials.Dir names the credentials.d directory itself; Load wants
	// its parent (it also looks there for a top-level credentials.cat).
	creds, err := credentials.Load(filepath.Join(zctx.Root(), filepath.Dir(cfg.Credentials.Dir)))
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	history, err := repostatus.Open(filepath.Join(varDir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	resolver := variables.New(map[string]string{"basearch": "x86_64"})

	paths := repomanager.Paths{
		KnownReposPath:      filepath.Join(zctx.Root(), cfg.Target.ReposDir),
		KnownServicesPath:   filepath.Join(zctx.Root(), cfg.Target.ServicesDir),
		PluginServicesDir:   filepath.Join(varDir, "plugins/services"),
		DefaultMetadataRoot: filepath.Join(cacheDir, "raw"),
		DefaultSolvRoot:     filepath.Join(cacheDir, "solv"),
		DefaultPackagesRoot: filepath.Join(cacheDir, "packages"),
	}
	manager, err := repomanager.New(paths, zctx, resolver, history, logger)
	if err != nil {
		return nil, fmt.Errorf("load repo manager: %w", err)
	}
	manager.CacheMetrics = collector

	registry := provider.NewRegistry(
		provider.NewHTTPProvider(cfg.Media.Timeout, cfg.Media.MaxRetries),
		provider.NewFileProvider(),
	)

	var reporter interface {
		signature.Reporter
		packageprovider.OuterReporter
	}
	if nonInteractive {
		reporter = reports.NewNonInteractiveReporter(reports.DefaultAutoPolicy(), os.Stderr)
	} else {
		reporter = reports.NewCLIReporter(os.Stdin, os.Stderr)
	}

	keyProvider := &repomanager.RepoKeyProvider{Registry: registry, ScratchDir: filepath.Join(varDir, "tmp")}
	sigFlow := signature.New(keys, reporter, keyProvider)
	pp := packageprovider.New(registry, sigFlow, reporter, logger)

	a := &app{
		cfg:      cfg,
		ctx:      zctx,
		manager:  manager,
		keys:     keys,
		creds:    creds,
		sigFlow:  sigFlow,
		registry: registry,
		provide:  pp,
		mirrors:  mirrorlist.NewFetcher(registry, time.Hour),
		logger:   logger,
		metrics:  collector,
	}
	a.download = &repomanager.HTTPDownloader{Registry: registry, Auth: a.auth}
	a.verifier = &repomanager.DefaultVerifier{Workflow: sigFlow, Metrics: collector}
	return a, nil
}

// applyFlagOverrides lets the --root/--lock-timeout/--read-only persistent
// flags win over whatever newApp loaded from the configuration file, but
// only when the caller actually passed them; an unset flag leaves the
// configured value alone instead of clobbering it with the flag's zero
// value default.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Target.Root = rootDir
	}
	if flags.Changed("lock-timeout") {
		cfg.Locking.Timeout = time.Duration(lockTimeout) * time.Second
	}
	if flags.Changed("read-only") {
		cfg.Target.ReadOnly = readOnly
	}
}

func newLogHandler(cfg config.LoggingConfig) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// auth looks up stored credentials for a fetch URL, implementing
// provider.AuthCallback over the credentials directory loaded at startup.
func (a *app) auth(url string) (string, string, bool) {
	cred, ok, err := a.creds.GetCred(url)
	if err != nil || !ok {
		return "", "", false
	}
	return cred.Username, cred.Password, true
}

func (a *app) Close() error {
	a.metrics.SetLockHeld("main", false)
	return a.ctx.Close()
}
