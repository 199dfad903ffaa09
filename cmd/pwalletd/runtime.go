package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/pushchain/push-wallet-link/walletlink/chains/svm"
	"github.com/pushchain/push-wallet-link/walletlink/config"
	"github.com/pushchain/push-wallet-link/walletlink/constant"
	"github.com/pushchain/push-wallet-link/walletlink/db"
	"github.com/pushchain/push-wallet-link/walletlink/logger"
	"github.com/pushchain/push-wallet-link/walletlink/metrics"
	"github.com/pushchain/push-wallet-link/walletlink/rpcpool"
	"github.com/pushchain/push-wallet-link/walletlink/txstore"
	"github.com/pushchain/push-wallet-link/walletlink/worker"
)

// runtime bundles the components shared by the commands
type runtime struct {
	cfg      config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	client   *svm.RPCClient
	database *db.DB
	store    *txstore.Store
	worker   *worker.Worker
}

func homeDir() string {
	home := viper.GetString(flagHome)
	if home == "" {
		home = constant.DefaultNodeHome
	}
	return home
}

// loadConfig reads the config under the home directory, falling back to the
// embedded defaults when none was written yet, and applies flag and
// environment overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(homeDir())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, err
		}
		def, derr := config.LoadDefaultConfig()
		if derr != nil {
			return config.Config{}, derr
		}
		cfg = *def
	}

	if viper.IsSet(flagRPCURL) {
		var urls []string
		for _, u := range cast.ToStringSlice(viper.Get(flagRPCURL)) {
			for _, part := range strings.Split(u, ",") {
				if part = strings.TrimSpace(part); part != "" {
					urls = append(urls, part)
				}
			}
		}
		if len(urls) > 0 {
			cfg.RPCURLs = urls
		}
	}
	if v := viper.GetString(flagLogLevel); v != "" {
		level, err := cast.ToIntE(v)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid log level %q: %w", v, err)
		}
		cfg.LogLevel = level
	}
	if v := viper.GetString(flagLogFormat); v != "" {
		cfg.LogFormat = v
	}
	if v := viper.GetString(flagCommitment); v != "" {
		cfg.Commitment = v
	}

	if err := config.Validate(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openRuntime wires the RPC pool and a worker. withStore opens the
// transaction database so submissions survive restarts.
func openRuntime(ctx context.Context, withStore bool, notify worker.NotificationSink) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Init(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt := &runtime{
		cfg:      cfg,
		log:      log,
		registry: registry,
		metrics:  metrics.New(registry),
	}

	rt.client, err = svm.NewRPCClient(cfg.RPCURLs, rpcpool.ConfigFrom(cfg.RPCPoolConfig), cfg.ExpectedGenesisHash, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}
	rt.client.Start(ctx)

	deps := worker.Deps{
		Client:  rt.client,
		Metrics: rt.metrics,
		Notify:  notify,
		Logger:  log,
	}
	if withStore {
		dataDir := filepath.Join(homeDir(), constant.DataSubdir)
		rt.database, err = db.OpenFileDB(dataDir, cfg.DatabaseFile, true)
		if err != nil {
			rt.client.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		rt.store = txstore.NewStore(rt.database.Client(), log)
		deps.Store = rt.store
	}

	rt.worker = worker.New(&cfg, deps)
	return rt, nil
}

func (rt *runtime) Close() {
	rt.worker.Close()
	rt.client.Close()
	if rt.database != nil {
		if err := rt.database.Close(); err != nil {
			rt.log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
