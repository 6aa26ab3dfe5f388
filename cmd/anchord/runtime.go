package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/credential-anchor/anchorClient/cas"
	"github.com/pushchain/credential-anchor/anchorClient/config"
	"github.com/pushchain/credential-anchor/anchorClient/core"
	"github.com/pushchain/credential-anchor/anchorClient/db"
	"github.com/pushchain/credential-anchor/anchorClient/ledger"
	"github.com/pushchain/credential-anchor/anchorClient/logger"
	"github.com/pushchain/credential-anchor/anchorClient/metrics"
	"github.com/pushchain/credential-anchor/anchorClient/verification"
)

// runtime holds what a single command invocation needs. Ledger and content
// store connections are opened lazily by the commands that use them.
type runtime struct {
	v        *viper.Viper
	cfg      config.Config
	log      zerolog.Logger
	out      io.Writer
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	journal  *db.Journal
	machine  *verification.Machine
	gateway  *ledger.Gateway
}

func newRuntime(cmd *cobra.Command, v *viper.Viper) (*runtime, error) {
	cfg, err := loadConfig(v.GetString(flagHome))
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(&cfg)
	if v.IsSet(flagLogLevel) {
		cfg.LogLevel = v.GetInt(flagLogLevel)
	}
	if v.IsSet(flagLogFormat) {
		cfg.LogFormat = v.GetString(flagLogFormat)
	}

	// Logs go to stderr so command output stays machine readable.
	log := logger.InitWithWriter(cmd.ErrOrStderr(), cfg)

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	database, err := db.Open(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	journal := db.NewJournal(database, log)

	return &runtime{
		v:        v,
		cfg:      cfg,
		log:      log,
		out:      cmd.OutOrStdout(),
		registry: registry,
		metrics:  m,
		journal:  journal,
		machine:  verification.NewMachine(log, verification.WithJournal(journal), verification.WithMetrics(m)),
	}, nil
}

// loadConfig reads <home>/config/anchord_config.json, falling back to the
// embedded defaults when the file does not exist.
func loadConfig(home string) (config.Config, error) {
	cfg, err := config.Load(home)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, err
	}

	def, err := config.LoadDefaultConfig()
	if err != nil {
		return config.Config{}, err
	}
	def.NodeHome = home
	return *def, nil
}

func (r *runtime) print(data interface{}) error {
	return printOutput(r.out, data, r.v.GetString(flagOutput))
}

// engine builds an Engine bound to the configured ledger, mirroring through
// IPFS when enabled.
func (r *runtime) engine() (*core.Engine, error) {
	if r.gateway == nil {
		gw, err := ledger.NewGateway(r.cfg, r.metrics, r.log)
		if err != nil {
			return nil, err
		}
		r.gateway = gw
	}

	opts := []core.Option{
		core.WithReceiptJournal(r.journal),
		core.WithMachine(r.machine),
		core.WithMetrics(r.metrics),
		core.WithMaxRetries(r.cfg.Submitter.MaxRetries),
	}
	if r.cfg.IPFS.Enabled {
		opts = append(opts, core.WithContentStore(cas.New(r.cfg.IPFS, r.log)))
	}
	return core.NewEngine(r.gateway, r.log, opts...), nil
}

func (r *runtime) signer() (*ledger.Signer, error) {
	key := config.SignerKey()
	if key == "" {
		return nil, fmt.Errorf("%s is not set", config.EnvSignerKey)
	}
	return ledger.NewSigner(key)
}

// Close releases connections and writes the metrics textfile if requested.
func (r *runtime) Close() error {
	if r.gateway != nil {
		r.gateway.Close()
	}
	var errs []error
	if path := r.v.GetString(flagMetricsTextfile); path != "" {
		if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := r.journal.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func readRecord(path string) (*verification.Record, error) {
	if path == "" {
		return nil, errors.New("--record is required")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	var rec verification.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", path, err)
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("record %s has unknown status %q", path, rec.Status)
	}
	return &rec, nil
}

func writeRecord(path string, rec *verification.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// withRuntime wraps a RunE body with runtime setup and teardown.
func withRuntime(v *viper.Viper, run func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		rt, err := newRuntime(cmd, v)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rt.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return run(cmd, args, rt)
	}
}
