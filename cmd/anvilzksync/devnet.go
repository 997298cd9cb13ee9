package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cmdconfig "anvilzksync/cmd/config"
	"anvilzksync/core"
)

// devnetManifest describes a set of nodes to launch together, one anvilzksync
// instance per entry, sharing nothing but a process and a shutdown signal.
type devnetManifest struct {
	Nodes []devnetNodeSpec `yaml:"nodes"`
}

type devnetNodeSpec struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ChainID  int    `yaml:"chain_id"`
	ForkURL  string `yaml:"fork_url"`
	CacheDir string `yaml:"cache_dir"`
}

func devnetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devnet <manifest.yaml>",
		Short: "launch several independent nodes from a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return devnetRun(args[0])
		},
	}
}

// devnetRun reads a manifest listing per-node overrides, builds one
// independent node per entry (its own state store, sequencer, RPC server —
// nothing shared across entries), and waits for a single shutdown signal to
// tear all of them down together.
func devnetRun(manifestPath string) error {
	b, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var manifest devnetManifest
	if err := yaml.Unmarshal(b, &manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if len(manifest.Nodes) == 0 {
		return fmt.Errorf("manifest %s declares no nodes", manifestPath)
	}

	cmdconfig.LoadConfig(flagEnv)
	baseCfg := cmdconfig.AppConfig

	log := logrus.StandardLogger()
	log.SetLevel(logLevelFromFlags(baseCfg.Logging.Level))
	log.SetFormatter(&logrus.JSONFormatter{})

	var servers []*httpServerHandle
	for i, spec := range manifest.Nodes {
		cfg := baseCfg
		if spec.ChainID != 0 {
			cfg.Network.ChainID = spec.ChainID
		}
		if spec.CacheDir != "" {
			cfg.Storage.CacheDir = spec.CacheDir
		} else {
			cfg.Storage.CacheDir = fmt.Sprintf("%s/devnet-%d", firstNonEmpty(baseCfg.Storage.CacheDir, "./.anvilzksync-cache"), i)
		}
		host := firstNonEmpty(spec.Host, baseCfg.Network.Host, "127.0.0.1")
		port := spec.Port
		if port == 0 {
			port = baseCfg.Network.Port + i
		}

		srv, health, err := buildServer(serveOptions{forkURL: spec.ForkURL}, cfg, log, host, port)
		if err != nil {
			for _, s := range servers {
				s.health.Close()
			}
			return fmt.Errorf("node %d: %w", i, err)
		}
		servers = append(servers, &httpServerHandle{srv: srv, health: health})

		go func() {
			log.WithFields(logrus.Fields{"node": i, "addr": srv.Addr}).Info("devnet node listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).WithField("node", i).Error("devnet node stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down devnet")

	for i, s := range servers {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("node", i).Warn("node shutdown error")
		}
		cancel()
		s.health.Close()
	}
	return nil
}

type httpServerHandle struct {
	srv    *http.Server
	health *core.HealthLogger
}
