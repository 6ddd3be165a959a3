package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"vbroker/internal/broker"
	"vbroker/internal/events"
	"vbroker/internal/ledger"
	"vbroker/internal/model"
	"vbroker/internal/obs"
	"vbroker/internal/ops"
	"vbroker/internal/sink"
	"vbroker/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	snapshotPath := flag.String("snapshot-path", "", "Ledger snapshot output (overrides config)")
	recoverEnabled := flag.Bool("recover", false, "Seed the ledger from an existing snapshot file")
	jsonlPath := flag.String("jsonl", "", "Write telemetry notices as JSON lines to this file")
	pgConn := flag.String("pg", "", "PostgreSQL connection string for snapshot storage (empty=disabled)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disabled)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "vbroker/paper",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed, err: %+v", err)
			os.Exit(1)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded, err := loadConfig(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}
	if *snapshotPath != "" {
		loaded.SnapshotPath = *snapshotPath
	}

	var snapshots *store.Postgres
	if *pgConn != "" {
		snapshots, err = store.Open(store.Option{ConnString: *pgConn})
		if err != nil {
			logs.Errorf("postgres open failed, err: %+v", err)
			os.Exit(1)
		}
		defer snapshots.Close()
	}

	if err := run(ctx, loaded, *recoverEnabled, *jsonlPath, snapshots); err != nil {
		logs.Errorf("paper run failed, err: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, loaded ops.Loaded, recoverEnabled bool, jsonlPath string, snapshots *store.Postgres) error {
	sim := broker.NewSim(broker.SimConfig{
		AccountCash: loaded.AccountCash,
		Currency:    loaded.Currency,
		Fee:         loaded.Fee,
	})
	for symbol, price := range loaded.Prices {
		sim.SetPrice(symbol, price)
	}
	if err := sim.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		_ = sim.Disconnect()
	}()

	var notices sink.Sink = sink.Log{}
	if jsonlPath != "" {
		f, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		notices = sink.NewWriter(f)
	}

	cfg := broker.VirtualConfig{
		AllocatedCapital: loaded.AllocatedCapital,
		Cash:             loaded.Cash,
		InstanceID:       loaded.InstanceID,
		Currency:         loaded.Currency,
		Sink:             notices,
		Metrics:          obs.NewMetrics(),
	}
	if recoverEnabled {
		if snap, ok := loadSnapshot(ctx, loaded, snapshots); ok {
			cfg.Cash = snap.Cash
			cfg.Positions = snap.SeedPositions()
			logs.Infof("recovered snapshot: cash=%s positions=%d", snap.Cash, len(snap.Positions))
		}
	}

	virtual, err := broker.NewVirtual(sim, cfg)
	if err != nil {
		return err
	}
	defer virtual.Close()

	detach := virtual.Attach(func(e events.Event) {
		logs.Infof("event %s: %+v", e.Type, e.Payload)
	})
	defer detach()

	for _, order := range loaded.Orders {
		admitted, err := virtual.PlaceOrder(ctx, order)
		if err != nil {
			logs.Warnf("place order %s failed, err: %+v", order.Symbol, err)
			continue
		}
		logs.Infof("order %s %s %s admitted=%t", order.Symbol, order.Side, order.Quantity, admitted)
	}

	cash, _ := virtual.CashBalance(ctx)
	holdings, _ := virtual.AccountHoldings(ctx)
	logs.Infof("cash=%+v equity=%s holdings=%d", cash, virtual.Equity(), len(holdings))

	final := virtual.Snapshot()
	if loaded.SnapshotPath != "" {
		if err := ledger.WriteSnapshot(loaded.SnapshotPath, final); err != nil {
			return err
		}
		logs.Infof("snapshot written: %s", loaded.SnapshotPath)
	}
	if snapshots != nil {
		if err := snapshots.Save(ctx, final); err != nil {
			return err
		}
		logs.Infof("snapshot saved to postgres: instance=%s", final.InstanceID)
	}

	snapshot := cfg.Metrics.Snapshot()
	logs.Infof("metrics: admitted=%d rejected=%d fills=%d forwarded=%d admission=%+v batch=%+v",
		snapshot.OrdersAdmitted, snapshot.OrdersRejected, snapshot.FillsApplied,
		snapshot.EventsForwarded, snapshot.AdmissionLatency, snapshot.BatchLatency)
	return nil
}

// loadSnapshot prefers the most recent PostgreSQL snapshot and falls back
// to the file snapshot.
func loadSnapshot(ctx context.Context, loaded ops.Loaded, snapshots *store.Postgres) (ledger.Snapshot, bool) {
	if snapshots != nil {
		snap, ok, err := snapshots.Latest(ctx, loaded.InstanceID)
		if err != nil {
			logs.Warnf("postgres snapshot recover skipped, err: %+v", err)
		} else if ok {
			return snap, true
		}
	}
	if loaded.SnapshotPath != "" {
		snap, err := ledger.ReadSnapshot(loaded.SnapshotPath)
		if err != nil {
			logs.Warnf("file snapshot recover skipped, err: %+v", err)
			return ledger.Snapshot{}, false
		}
		return snap, true
	}
	return ledger.Snapshot{}, false
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return defaultLoaded(), nil
	}
	return ops.Load(path)
}

func defaultLoaded() ops.Loaded {
	capital := decimal.NewFromInt(100_000)
	return ops.Loaded{
		InstanceID:       "paper-1",
		Currency:         "USD",
		AllocatedCapital: capital,
		Cash:             capital,
		AccountCash:      decimal.NewFromInt(1_000_000),
		Prices: map[string]decimal.Decimal{
			"BTC-USD": decimal.NewFromInt(50_000),
		},
		Orders: []*model.Order{
			{
				Symbol:   "BTC-USD",
				Side:     model.SideBuy,
				Type:     model.OrderTypeLimit,
				Quantity: decimal.NewFromInt(1),
				Price:    decimal.NewFromInt(50_000),
			},
		},
		SnapshotPath: "testdata/ledger.json",
	}
}
