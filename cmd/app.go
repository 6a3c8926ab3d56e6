package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dex-swap/config"
	"dex-swap/pkg/chain"
	"dex-swap/pkg/logging"
	"dex-swap/pkg/metrics"
	"dex-swap/pkg/router"
	"dex-swap/pkg/token"
	"dex-swap/pkg/trade"
)

// dial opens the chain session; tests replace it with an in-memory backend
var dial = chain.Dial

// globalFlagKeys binds the root's persistent flags onto config keys
var globalFlagKeys = map[string]string{
	"rpc-url":      "chain.rpc_url",
	"router":       "chain.router",
	"metrics-addr": "metrics.addr",
}

// app is everything a command needs for one run
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	runID   string
	session *chain.Session
	tokens  *token.Registry
	router  *router.Router

	jsonOutput bool
	verbose    bool
	out        io.Writer

	cancel context.CancelFunc
}

// newApp loads configuration, builds the logger and opens the chain session.
// flagKeys maps the command's own flags onto config keys.
func newApp(cmd *cobra.Command, v *viper.Viper, flagKeys map[string]string, needSigner bool) (*app, error) {
	if v == nil {
		v = viper.New()
	}
	for _, keys := range []map[string]string{globalFlagKeys, flagKeys} {
		for name, key := range keys {
			f := cmd.Flags().Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	if needSigner {
		if err := cfg.RequireSigner(); err != nil {
			return nil, err
		}
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	log, runID, err := logging.New(verbose, jsonOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	log = log.With(zap.String("command", cmd.Name()))

	ctx, cancel := context.WithCancel(cmd.Context())
	session, err := dial(ctx, cfg.Chain.RPCURL, cfg.Chain.PrivateKey)
	if err != nil {
		cancel()
		return nil, err
	}

	metrics.Serve(ctx, cfg.Metrics.Addr, nil, log)

	log.Debug("session ready",
		zap.String("rpc", cfg.Chain.RPCURL),
		zap.String("chain_id", session.ChainID.String()),
		zap.String("account", session.From.Hex()),
		zap.String("router", cfg.Chain.Router),
	)

	return &app{
		cfg:        cfg,
		log:        log,
		runID:      runID,
		session:    session,
		tokens:     token.NewRegistry(session),
		router:     router.New(session, cfg.RouterAddress()),
		jsonOutput: jsonOutput,
		verbose:    verbose,
		out:        cmd.OutOrStdout(),
		cancel:     cancel,
	}, nil
}

// Close stops the metrics server and releases the chain session
func (a *app) Close() {
	a.cancel()
	a.session.Close()
	_ = a.log.Sync()
}

// executor wires the router into a retrying trade executor
func (a *app) executor() (*trade.Executor, error) {
	gasPrice, err := a.cfg.GasPrice()
	if err != nil {
		return nil, err
	}

	submitter := router.NewSubmitter(a.router, a.cfg.Trade.GasLimit, router.NewClassifier(a.cfg.Retry.Reasons), a.log)
	if gasPrice != nil {
		submitter.SetGasPrice(gasPrice)
	}

	exec := trade.NewExecutor(a.router, submitter, a.cfg.Policy(), a.log)
	exec.SetSimulate(a.cfg.Trade.Simulate)
	return exec, nil
}

// spin runs fn behind a spinner unless output is JSON
func (a *app) spin(suffix string, fn func() error) error {
	if a.jsonOutput {
		return fn()
	}
	s := newSpinner(a.out, suffix)
	s.Start()
	defer s.Stop()
	return fn()
}

// trackStates drives a spinner from executor state transitions
func (a *app) trackStates(exec *trade.Executor, label string) (stop func()) {
	if a.jsonOutput {
		return func() {}
	}
	s := newSpinner(a.out, "")
	exec.OnState(func(state trade.State, attempt int) {
		switch state {
		case trade.StateQuoting, trade.StateSimulating, trade.StateSubmitting:
			s.Lock()
			s.Suffix = fmt.Sprintf(" %s: %s (attempt %d)...", label, stateLabel(state), attempt)
			s.Unlock()
			if !s.Active() {
				s.Start()
			}
		default:
			s.Stop()
		}
	})
	return s.Stop
}

func newSpinner(w io.Writer, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = suffix
	return s
}

func stateLabel(state trade.State) string {
	switch state {
	case trade.StateQuoting:
		return "fetching quote"
	case trade.StateSimulating:
		return "simulating"
	case trade.StateSubmitting:
		return "waiting for confirmation"
	default:
		return string(state)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// parseAddress validates a token address flag
func parseAddress(cmd *cobra.Command, flag, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, usageError(cmd, flag, fmt.Sprintf("--%s is required", flag))
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, config.Errorf(flag, "invalid address %q", value)
	}
	return common.HexToAddress(value), nil
}
