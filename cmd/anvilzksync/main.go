package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cmdconfig "anvilzksync/cmd/config"
	"anvilzksync/core"
	"anvilzksync/core/rpc"
	pkgconfig "anvilzksync/pkg/config"
)

var (
	flagHost                string
	flagPort                int
	flagLogLevel            string
	flagVerbosity           int
	flagCacheDir            string
	flagSystemContractsPath string
	flagOverrideBytecodeDir string
	flagEnv                 string
)

func main() {
	root := &cobra.Command{Use: "anvilzksync", Short: "a local zk-rollup development node"}
	root.PersistentFlags().StringVar(&flagHost, "host", "", "override the configured RPC host")
	root.PersistentFlags().IntVar(&flagPort, "port", 0, "override the configured RPC port")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override the configured log level")
	root.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v", "increase log verbosity (-v..-vvvv)")
	root.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "override the configured state cache directory")
	root.PersistentFlags().StringVar(&flagSystemContractsPath, "system-contracts-path", "", "path to system contract bytecode")
	root.PersistentFlags().StringVar(&flagOverrideBytecodeDir, "override-bytecode-dir", "", "directory of cheatcode-etched bytecode to preload")
	root.PersistentFlags().StringVar(&flagEnv, "env", "", "config environment overlay to merge over default.yaml")

	root.AddCommand(runCmd())
	root.AddCommand(forkCmd())
	root.AddCommand(replayTxCmd())
	root.AddCommand(devnetCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the node against a fresh in-memory chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(serveOptions{})
		},
	}
}

func forkCmd() *cobra.Command {
	var forkBlock uint64
	cmd := &cobra.Command{
		Use:   "fork <network-url>",
		Short: "start the node with state read through from an upstream RPC endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(serveOptions{forkURL: args[0], forkBlock: forkBlock})
		},
	}
	cmd.Flags().Uint64Var(&forkBlock, "fork-block", 0, "pin the fork to a specific block number (0 = latest)")
	return cmd
}

func replayTxCmd() *cobra.Command {
	var forkBlock uint64
	cmd := &cobra.Command{
		Use:   "replay_tx <network-url> <tx-hash>",
		Short: "fork at --fork-block and log tx-hash; the transaction is not fetched or replayed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := core.ParseHash(args[1])
			if err != nil {
				return fmt.Errorf("invalid transaction hash: %w", err)
			}
			return serve(serveOptions{forkURL: args[0], forkBlock: forkBlock, replayTx: &h})
		},
	}
	cmd.Flags().Uint64Var(&forkBlock, "fork-block", 0, "block to fork from before replaying (0 = latest)")
	return cmd
}

type serveOptions struct {
	forkURL   string
	forkBlock uint64
	replayTx  *core.Hash
}

// serve wires every core subsystem together exactly once, whether invoked
// via `run`, `fork`, or `replay_tx` — the three subcommands differ only in
// whether a ForkBackend gets attached to the state store before the first
// request is served.
func serve(opts serveOptions) error {
	// Load environment variables from a project .env if present.
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cmdconfig.LoadConfig(flagEnv)
	cfg := cmdconfig.AppConfig

	log := logrus.StandardLogger()
	level := logLevelFromFlags(cfg.Logging.Level)
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})

	httpSrv, health, err := buildServer(opts, cfg, log, firstNonEmpty(flagHost, cfg.Network.Host, "127.0.0.1"), flagPort)
	if err != nil {
		return err
	}
	defer health.Close()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpSrv.Addr).Info("anvilzksync listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildServer wires every core subsystem for a single node instance and
// returns an *http.Server ready to ListenAndServe, without starting it or
// waiting on any signal — the part serve and devnetRun share.
func buildServer(opts serveOptions, cfg pkgconfig.Config, log *logrus.Logger, host string, portOverride int) (*http.Server, *core.HealthLogger, error) {
	port := cfg.Network.Port
	if portOverride != 0 {
		port = portOverride
	}
	cacheDir := firstNonEmpty(flagCacheDir, cfg.Storage.CacheDir, "./.anvilzksync-cache")

	store, err := core.NewStateStore(core.StateStoreConfig{
		CacheDir:         cacheDir,
		SnapshotInterval: cfg.Storage.SnapshotInterval,
		Logger:           log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}

	index := core.NewChainIndex()
	clock := core.NewTimeOracle()
	gasLimit := cfg.VM.MaxGasPerBlock
	fees := core.NewFeeOracle(1_000_000_000, gasLimit)
	pool := core.NewMempool(store)
	cheats := core.NewCheatcodeRegistry(store, clock)
	snaps := core.NewSnapshotManager(store, index, pool, clock, fees)
	seq := core.NewSequencer(core.SequencerConfig{
		Store: store, Index: index, Pool: pool, Clock: clock, Fees: fees,
		Cheats: cheats, Snaps: snaps, Logger: log,
	})

	rich := core.GenerateRichAccounts()
	if err := core.SeedRichAccounts(store, rich); err != nil {
		return nil, nil, fmt.Errorf("seed rich accounts: %w", err)
	}

	overrideDir := firstNonEmpty(flagOverrideBytecodeDir, cfg.VM.OverrideBytecode)
	if overrideDir != "" {
		n, err := loadOverrideBytecode(cheats, overrideDir)
		if err != nil {
			return nil, nil, fmt.Errorf("load override bytecode: %w", err)
		}
		log.WithFields(logrus.Fields{"dir": overrideDir, "count": n}).Info("etched override bytecode")
	}
	systemContractsDir := firstNonEmpty(flagSystemContractsPath, cfg.VM.SystemContracts)
	if systemContractsDir != "" {
		n, err := loadSystemContracts(store, systemContractsDir)
		if err != nil {
			return nil, nil, fmt.Errorf("load system contracts: %w", err)
		}
		log.WithFields(logrus.Fields{"dir": systemContractsDir, "count": n}).Info("deployed system contracts")
	}

	var fork core.ForkBackend
	forkURL := firstNonEmpty(opts.forkURL, cfg.Fork.URL)
	if forkURL != "" {
		forkBlock := opts.forkBlock
		if forkBlock == 0 {
			forkBlock = cfg.Fork.BlockNumber
		}
		forkCacheDir := firstNonEmpty(cfg.Fork.CacheDir, cacheDir+"/fork")
		fb, err := core.NewHTTPForkBackend(forkURL, forkBlock, forkCacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("dial fork backend: %w", err)
		}
		store.AttachFork(fb)
		fork = fb
		log.WithFields(logrus.Fields{"url": forkURL, "block": forkBlock}).Info("forking from upstream")
	}

	if opts.replayTx != nil {
		log.WithField("tx", opts.replayTx.Hex()).Info("replay_tx: fork pinned, submit the transaction manually over RPC to trace it")
	}

	logFile := firstNonEmpty(cfg.Logging.File, cacheDir+"/anvilzksync.log")
	health, err := core.NewHealthLogger(index, pool, fees, logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("start health logger: %w", err)
	}

	go health.RunMetricsCollector(context.Background(), 5*time.Second)

	node := rpc.NewNode(rpc.NodeConfig{
		Store: store, Index: index, Pool: pool, Clock: clock, Fees: fees,
		Cheats: cheats, Snaps: snaps, Sequencer: seq, Fork: fork, Rich: rich,
		ChainID: uint64(cfg.Network.ChainID), Logger: log,
	})
	server := rpc.NewServer(node)

	addr := fmt.Sprintf("%s:%d", host, port)
	httpSrv := &http.Server{Addr: addr, Handler: server}
	return httpSrv, health, nil
}

func logLevelFromFlags(configured string) logrus.Level {
	switch flagVerbosity {
	case 1:
		return logrus.DebugLevel
	case 2, 3, 4:
		return logrus.TraceLevel
	}
	if flagLogLevel != "" {
		configured = flagLogLevel
	}
	lvl, err := logrus.ParseLevel(configured)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// loadOverrideBytecode etches every <address>.bin file in dir over the
// matching account, the filesystem-driven counterpart of anvil_setCode.
func loadOverrideBytecode(cheats *core.CheatcodeRegistry, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		addrHex := strings.TrimSuffix(e.Name(), ".bin")
		addr, err := core.ParseAddress(addrHex)
		if err != nil {
			return n, fmt.Errorf("%s: %w", e.Name(), err)
		}
		code, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		if err := cheats.Etch(addr, code); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// loadSystemContracts deploys every <address>.bin file in dir as plain
// contract code (not etched), for the well-known protocol contracts a
// fresh genesis expects to already be present.
func loadSystemContracts(store *core.StateStore, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bin") {
			continue
		}
		addrHex := strings.TrimSuffix(e.Name(), ".bin")
		addr, err := core.ParseAddress(addrHex)
		if err != nil {
			return n, fmt.Errorf("%s: %w", e.Name(), err)
		}
		code, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		if err := store.SetCode(addr, code); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
