// Package cli implements the sigil command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nomark/sigil/internal/analyzer"
	"github.com/nomark/sigil/internal/cache"
	"github.com/nomark/sigil/internal/config"
	"github.com/nomark/sigil/internal/ingest"
	"github.com/nomark/sigil/internal/intel"
	"github.com/nomark/sigil/internal/pkg/clock"
	"github.com/nomark/sigil/internal/pkg/logger"
	"github.com/nomark/sigil/internal/quarantine"
	"github.com/nomark/sigil/internal/report"
	"github.com/nomark/sigil/internal/scan"
	"github.com/nomark/sigil/internal/scanners"
	"github.com/nomark/sigil/internal/triage"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string
	serverURL    string

	// exitCode carries the verdict-derived status from scan commands
	// to main. Operational errors use the error channel instead.
	exitCode int
)

// app holds the wired components behind every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *quarantine.Store
	fetcher *ingest.Fetcher
	cloud    *intel.Service
	client   *intel.Client
	tokens   *intel.TokenStore
	sigCache *intel.SignatureCache
	cache    *cache.Cache
	triage   *triage.Triage
}

var current *app

var rootCmd = &cobra.Command{
	Use:   "sigil",
	Short: "Sigil - quarantine and triage untrusted code before it runs",
	Long: `Sigil pulls repositories and packages into an isolated quarantine,
scans them for install hooks, dangerous code patterns, exfiltration,
credential theft, and obfuscation, and reports a verdict before
anything is allowed near your toolchain.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initApp()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and returns the verdict exit code set
// by scan commands (zero when no scan ran).
func Execute() (int, error) {
	err := rootCmd.Execute()
	return exitCode, err
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.sigil/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "cloud API URL (overrides config)")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("cloud.base_url", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newApproveCmd())
	rootCmd.AddCommand(newRejectCmd())
	rootCmd.AddCommand(newDiffCmd())
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newSignaturesCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newConfigCmd())
}

func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return
		}
		configDir := filepath.Join(home, ".sigil")
		_ = os.MkdirAll(configDir, 0o700)
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SIGIL")
	viper.AutomaticEnv()

	viper.SetDefault("output", "table")

	_ = viper.ReadInConfig()
}

func initApp() error {
	if current != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if url := viper.GetString("cloud.base_url"); url != "" {
		cfg.Cloud.BaseURL = url
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	clk := clock.Real()

	store, err := quarantine.NewStore(cfg.Paths.QuarantineRoot, cfg.Paths.ApprovedRoot, clk, log.Component("quarantine"))
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(cfg.Paths.ReportDir, clk)
	if err != nil {
		return err
	}

	client := intel.NewClient(intel.ClientConfig{BaseURL: cfg.Cloud.BaseURL, Timeout: cfg.Cloud.HTTPTimeout})
	tokens := intel.NewTokenStore(cfg.Paths.TokenFile, cfg.Cloud.TokenTTL, clk)
	sigCache := intel.NewSignatureCache(filepath.Join(cfg.Paths.CacheDir, "signatures.json"), cfg.Cloud.SignatureTTL, clk)
	cloud := intel.NewService(client, tokens, sigCache, log.Component("intel"))

	scanCache := cache.New(filepath.Join(cfg.Paths.CacheDir, "scan_cache.json"), clk)

	runner := scanners.NewRunner(cfg.Scanners.Timeout, log.Component("scanners"))
	if !cfg.Scanners.Enabled {
		runner = scanners.NewRunnerWith(cfg.Scanners.Timeout, log.Component("scanners"))
	}

	tri := triage.New(
		store,
		scan.NewEngine(log.Component("scan"), cfg.Scan.MaxFileSize, cfg.Scan.IgnoreFileName),
		runner,
		analyzer.New(log.Component("analyzer")),
		cloud,
		scanCache,
		writer,
		cfg.Scan.Workers,
		log.Component("triage"),
	)

	current = &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		fetcher:  ingest.NewFetcher(store, cfg.Scanners.Timeout, log.Component("ingest")),
		cloud:    cloud,
		client:   client,
		tokens:   tokens,
		sigCache: sigCache,
		cache:    scanCache,
		triage:   tri,
	}
	return nil
}
