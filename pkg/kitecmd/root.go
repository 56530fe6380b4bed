package kitecmd

import (
	"context"
	"errors"

	"go.brendoncarroll.net/stdctx/logctx"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kitewallet/kite/pkg/chain"
	"github.com/kitewallet/kite/pkg/engine"
	"github.com/kitewallet/kite/pkg/kvstore"
)

var ctx = func() context.Context {
	ctx := context.Background()
	l, _ := zap.NewProduction()
	ctx = logctx.NewContext(ctx, l)
	return ctx
}()

func NewRootCmd() *cobra.Command {
	var e *engine.Engine
	var store *kvstore.Store
	cmd := &cobra.Command{
		Use:   "kite",
		Short: "Kite wallet engine",
	}
	configPath := cmd.PersistentFlags().String("config", "", "--config=./kite.toml")
	cmd.PersistentPreRunE = func(cmd2 *cobra.Command, args []string) error {
		if *configPath == "" {
			return errors.New("config flag is required")
		}
		cfg, err := LoadConfig(*configPath)
		if err != nil {
			return err
		}
		backing, err := openBacking(cfg)
		if err != nil {
			return err
		}
		store, err = kvstore.Open(ctx, backing, engine.StoreVersion)
		if err != nil {
			return err
		}
		e = engine.New(engine.Params{
			Store: store,
			Fetcher: chain.NewClient(chain.ClientParams{
				BaseURL: cfg.Endpoint,
				Timeout: cfg.Timeout(),
			}),
			Registerer: prometheus.DefaultRegisterer,
			Context:    ctx,
		})
		return e.Start(ctx)
	}
	cmd.PersistentPostRunE = func(cmd2 *cobra.Command, args []string) error {
		if e != nil {
			if err := e.Close(); err != nil {
				return err
			}
		}
		if store != nil {
			return store.Close()
		}
		return nil
	}
	for _, c := range []*cobra.Command{
		newServeCmd(func() engine.API { return e }),
		newAccountCmd(func() engine.API { return e }),
		newStatusCmd(func() engine.API { return e }),
	} {
		cmd.AddCommand(c)
	}
	return cmd
}

func openBacking(cfg *Config) (kvstore.Backing, error) {
	switch cfg.Backing {
	case "", "sqlite":
		db, err := sqlx.Open("sqlite3", cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return kvstore.NewSQLiteBacking(ctx, db)
	case "leveldb":
		return kvstore.NewLevelDBBacking(cfg.DBPath)
	default:
		return nil, errors.New("unknown backing " + cfg.Backing)
	}
}
