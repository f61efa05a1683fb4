// Command l2node is the thin CLI entrypoint wiring config, logging,
// persistence, the slot clock, the tick executor, broadcast, and the
// follower client together: the minimal ambient glue a real deployment
// needs around the core, in a kong-based flag-parsing style.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/broadcast"
	"github.com/nodeforge/l2chain/internal/clock"
	"github.com/nodeforge/l2chain/internal/config"
	"github.com/nodeforge/l2chain/internal/executor"
	"github.com/nodeforge/l2chain/internal/follower"
	"github.com/nodeforge/l2chain/internal/kv"
	"github.com/nodeforge/l2chain/internal/l2errors"
	"github.com/nodeforge/l2chain/internal/metrics"
	"github.com/nodeforge/l2chain/internal/notify"
	"github.com/nodeforge/l2chain/internal/persistence"
	"github.com/nodeforge/l2chain/internal/processor"
	"github.com/nodeforge/l2chain/internal/processor/builtin"
	"github.com/nodeforge/l2chain/internal/queryapi"
	"github.com/nodeforge/l2chain/internal/queue"
	"github.com/nodeforge/l2chain/internal/statechange"
)

type cli struct {
	Config string `kong:"help='Path to the node TOML config file.',default='l2node.toml'"`
}

func main() {
	var c cli
	kong.Parse(&c, kong.Name("l2node"), kong.Description("Leader-driven L2 execution chain node."))

	logger := log.New()

	cfg, err := config.Load(c.Config)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	switch cfg.Role {
	case "leader":
		runLeader(logger, cfg)
	case "follower":
		runFollower(logger, cfg)
	}
}

func runLeader(logger log.Logger, cfg config.Config) {
	store := kv.New()
	chainLog := statechange.NewLog()
	q := queue.New(cfg.QueueCapacity)
	notifier := notify.New(0)
	clk := clock.New(cfg.TickPeriod())

	pstore, err := persistence.Open(cfg.PersistencePath, cfg.CacheSize)
	if err != nil {
		logger.Error("persistence open failed", "err", err)
		os.Exit(1)
	}
	defer pstore.Close()

	meta, found, err := pstore.LoadMetadata()
	if err != nil {
		logger.Error("fatal: load metadata", "err", err)
		os.Exit(1)
	}
	if found {
		_ = pstore.IterateAll(func(key accounts.Key, account *accounts.Account, slot accounts.Slot) bool {
			store.Put(key, account, slot)
			return true
		})
		logger.Info("recovered from snapshot", "slot", meta.CurrentSlot, "accounts", meta.AccountCount)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	srv := broadcast.New(chainLog, cfg.Broadcast.SessionBufferSize)
	srv.OnLagged = func(sessionID string) {
		m.BroadcastLag.WithLabelValues(sessionID).Inc()
	}
	registry := builtin.NewRegistry()

	env := func(slot accounts.Slot, blockhash [32]byte, ts uint64) *processor.Environment {
		return &processor.Environment{Slot: slot, Blockhash: blockhash, TimestampMs: ts}
	}

	exec := executor.New(store, q, chainLog, registry, notifier, srv, env, cfg.TickPeriod(), func(o l2errors.SlotOverrun) {
		logger.Warn("slot overrun", "slot", o.Slot, "took_ms", o.TookMs)
	})
	exec.SetMaxDataLen(cfg.MaxAccountDataLen)
	exec.SetMaxTxsPerSlot(cfg.MaxTxsPerSlot)

	done := make(chan struct{})
	defer close(done)

	go pstore.RunSnapshotLoop(done, cfg.SnapshotInterval(), store, clk.CurrentSlot, clk.CurrentBlockhash, nowMs, func(f l2errors.PersistenceFailure) {
		logger.Warn("snapshot failed", "stage", f.Stage, "err", f.Err)
	})
	go srv.RunHeartbeatLoop(done, cfg.TickPeriod()*time.Duration(cfg.Broadcast.HeartbeatEverySlots), clk.CurrentSlot)

	mux := http.NewServeMux()
	mux.Handle("/broadcast", srv)
	go http.ListenAndServe(cfg.Broadcast.ListenAddr, mux)
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go http.ListenAndServe(cfg.Metrics.ListenAddr, metricsMux)
	}

	_ = queryapi.New(store, q, notifier, clk)

	logger.Info("leader started", "broadcast_addr", cfg.Broadcast.ListenAddr, "tick_period_ms", cfg.TickPeriodMs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clockDone := make(chan struct{})
	go clk.Run(clockDone, func(slot accounts.Slot, blockhash [32]byte) {
		start := time.Now()
		result := exec.RunTick(slot, blockhash, uint64(time.Now().UnixMilli()))
		m.TickDuration.Observe(time.Since(start).Seconds())
		m.SlotsProcessed.Inc()
		m.QueueDepth.Set(float64(q.Len()))
		for _, rejected := range result.RejectedTxs {
			m.TxRejected.WithLabelValues(rejected.Kind.String()).Inc()
		}
	})

	<-ctx.Done()
	close(clockDone)
	logger.Info("shutting down, taking final snapshot")
	_ = pstore.Snapshot(store, clk.CurrentSlot(), clk.CurrentBlockhash(), uint64(time.Now().UnixMilli()))
}

func runFollower(logger log.Logger, cfg config.Config) {
	store := kv.New()
	chainLog := statechange.NewLog()
	client := follower.New(store, chainLog)

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		client.OnVerified = func(slot accounts.Slot) {
			m.FollowerVerified.Set(float64(slot))
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go http.ListenAndServe(cfg.Metrics.ListenAddr, mux)
	}

	if err := client.Connect(cfg.Follower.LeaderAddr, accounts.Slot(cfg.Follower.FromSlot)); err != nil {
		logger.Error("follower connect failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	err := client.Run(done, func(f l2errors.FraudDetected) {
		logger.Error("fraud challenge raised", "slot", f.Slot, "reason", f.Reason)
	})
	if err != nil {
		logger.Error("follower connection closed", "err", err)
	}
	fmt.Fprintln(os.Stderr, "follower exiting at slot", client.LocalSlot())
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
