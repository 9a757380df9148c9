// Copyright (C) 2019-2024 Algorand, Inc.
// This file is part of go-twochain
//
// go-twochain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-twochain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-twochain.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus/liveness"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/network"
	"github.com/algorand/go-twochain/node"
	"github.com/algorand/go-twochain/util/metrics"
)

const (
	lockFilename       = "twochaind.lock"
	logFilename        = "twochaind.log"
	archiveLogFilename = "twochaind.archive.log"
)

var (
	numValidators  int
	runDuration    time.Duration
	txnRate        float64
	metricsAddress string
	statusInterval time.Duration
	logSizeLimit   uint64
	logLevel       string
	jsonLogs       bool
	election       = makeChoiceValue(liveness.RotatingElection, liveness.WeightedElection)
)

func init() {
	runLocalCmd.Flags().IntVarP(&numValidators, "validators", "n", 4, "Number of validators")
	runLocalCmd.Flags().DurationVar(&runDuration, "duration", 0, "Stop after this long, 0 runs until interrupted")
	runLocalCmd.Flags().Float64Var(&txnRate, "txn-rate", 10, "Transactions submitted per second across the network")
	runLocalCmd.Flags().StringVar(&metricsAddress, "metrics", "", "Serve /metrics on this address, overrides MetricsListenAddress")
	runLocalCmd.Flags().DurationVar(&statusInterval, "status-interval", 5*time.Second, "How often to log each validator's status")
	runLocalCmd.Flags().Uint64Var(&logSizeLimit, "log-size", 64<<20, "Size limit of the log file in the data directory, 0 logs to stderr")
	runLocalCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides BaseLoggerDebugLevel")
	runLocalCmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Write log entries as JSON")
	runLocalCmd.Flags().Var(election, "election", "Proposer election: "+election.allowedString())
}

// choiceValue is a string flag restricted to a fixed set of values.
type choiceValue struct {
	value   string
	allowed []string
	isSet   bool
}

func makeChoiceValue(value string, others ...string) *choiceValue {
	return &choiceValue{value: value, allowed: append([]string{value}, others...)}
}

func (c *choiceValue) String() string { return c.value }
func (c *choiceValue) Type() string   { return "string" }

func (c *choiceValue) Set(other string) error {
	for _, s := range c.allowed {
		if other == s {
			c.value = other
			c.isSet = true
			return nil
		}
	}
	return fmt.Errorf("value %s not allowed, use one of %s", other, c.allowedString())
}

func (c *choiceValue) allowedString() string {
	return fmt.Sprint(c.allowed)
}

var runLocalCmd = &cobra.Command{
	Use:   "run-local",
	Short: "Run a network of validators in this process",
	Long: `Run a network of validators connected by an in-process transport.
With a data directory each validator keeps its blocks and consensus state in
a subdirectory and resumes from them on the next run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if runDuration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runDuration)
			defer cancel()
		}
		return runLocal(ctx, resolveDataDir())
	},
}

func validatorSecrets(i int) *crypto.SignatureSecrets {
	var seed crypto.Seed
	d := crypto.Hash([]byte(fmt.Sprintf("twochaind local validator %d", i)))
	copy(seed[:], d[:])
	return crypto.GenerateSignatureSecrets(seed)
}

func loadLocalConfig(dir string) (config.Local, error) {
	if dir == "" {
		return config.GetDefaultLocal(), nil
	}
	cfg, err := config.LoadConfigFromDisk(dir)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("loading config from %s: %w", dir, err)
	}
	return cfg, nil
}

func runLocal(ctx context.Context, dir string) error {
	if numValidators < 1 {
		return fmt.Errorf("need at least one validator, got %d", numValidators)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		// only one process may use a data directory
		fileLock := flock.New(filepath.Join(dir, lockFilename))
		locked, err := fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("locking %s: %w", dir, err)
		}
		if !locked {
			return fmt.Errorf("%s is in use by another twochaind", dir)
		}
		defer fileLock.Unlock()
	}

	cfg, err := loadLocalConfig(dir)
	if err != nil {
		return err
	}
	if election.isSet || cfg.ProposerElectionType == "" {
		cfg.ProposerElectionType = election.value
	}
	if metricsAddress != "" {
		cfg.MetricsListenAddress = metricsAddress
	}
	level := logging.Level(cfg.BaseLoggerDebugLevel)
	if logLevel != "" {
		if level, err = logging.ParseLevel(logLevel); err != nil {
			return err
		}
	}
	log.SetLevel(level)
	if jsonLogs {
		log.SetJSONFormatter()
	}
	if dir != "" && logSizeLimit > 0 {
		w, err := logging.MakeCyclicFileWriter(filepath.Join(dir, logFilename), filepath.Join(dir, archiveLogFilename), logSizeLimit)
		if err != nil {
			return err
		}
		log.SetOutput(w)
		defer func() {
			log.SetOutput(os.Stderr)
			w.Close()
		}()
	}

	secrets := make([]*crypto.SignatureSecrets, numValidators)
	infos := make([]types.ValidatorInfo, numValidators)
	for i := range secrets {
		secrets[i] = validatorSecrets(i)
		infos[i] = types.MakeValidatorInfo(secrets[i].PublicKey, 1)
	}
	verifier, err := types.MakeValidatorVerifier(infos)
	if err != nil {
		return err
	}
	genesis := types.MakeGenesisBlock(1, 0)

	registry := prometheus.NewRegistry()
	hub := network.MakeHub(metrics.MakePrometheusSink("twochain", prometheus.WrapRegistererWith(prometheus.Labels{"node": "hub"}, registry)), log)
	nodes := make([]*node.Node, 0, numValidators)
	defer func() {
		for _, n := range nodes {
			n.Stop()
		}
	}()
	for i, s := range secrets {
		addr := basics.AddressFromPublicKey(s.PublicKey)
		nodeDir := ""
		if dir != "" {
			nodeDir = filepath.Join(dir, fmt.Sprintf("node-%d", i))
		}
		sink := metrics.MakePrometheusSink("twochain", prometheus.WrapRegistererWith(prometheus.Labels{"node": addr.ShortString()}, registry))
		n, err := node.MakeNode(nodeDir, s, verifier, genesis, hub.Join(addr, cfg.EventQueueSize), cfg, sink, log)
		if err != nil {
			return fmt.Errorf("validator %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		if err := n.Start(); err != nil {
			return err
		}
	}
	log.Infof("running %d validators, election %s", numValidators, cfg.ProposerElectionType)

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsListenAddress != "" {
		srv := &http.Server{Addr: cfg.MetricsListenAddress, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}
	g.Go(func() error {
		submitTransactions(ctx, nodes)
		return nil
	})
	g.Go(func() error {
		reportStatus(ctx, nodes)
		return nil
	})
	return g.Wait()
}

// submitTransactions feeds every validator's pool at txnRate.
func submitTransactions(ctx context.Context, nodes []*node.Node) {
	if txnRate <= 0 {
		return
	}
	limiter := rate.NewLimiter(rate.Limit(txnRate), 1)
	var nonce uint64
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		nonce++
		tx := types.Transaction{
			Sender: nodes[0].Address(),
			Nonce:  nonce,
			Body:   []byte(fmt.Sprintf("local transaction %d", nonce)),
		}
		for _, n := range nodes {
			if err := n.SubmitTransaction(tx); err != nil {
				log.Debugf("%v: %v", n.Address(), err)
			}
		}
	}
}

func reportStatus(ctx context.Context, nodes []*node.Node) {
	if statusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, n := range nodes {
				st := n.Status()
				log.WithFields(logging.Fields{
					"node":      n.Address().ShortString(),
					"committed": st.Committed.Round,
					"ordered":   st.HighestOrdered,
					"certified": st.HighestCertified,
					"pending":   st.PendingTxns,
				}).Info("status")
			}
		}
	}
}
