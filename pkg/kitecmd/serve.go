package kitecmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kitewallet/kite/pkg/engine"
	"github.com/kitewallet/kite/pkg/kitejsonrpc"
)

func newServeCmd(sf func() engine.API) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the engine API over JSON-RPC",
		Args:  cobra.ExactArgs(1),
	}
	metricsAddr := cmd.Flags().String("metrics", "", "--metrics=127.0.0.1:9100")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		addr := args[0]

		var rwc io.ReadWriteCloser
		switch addr {
		case "-":
			rwc = &readWriteCloser{
				read:  cmd.InOrStdin().Read,
				write: cmd.OutOrStdout().Write,
				close: func() error { return nil },
			}
		default:
			return fmt.Errorf("unsupported address %v", addr)
		}
		s := sf()

		eg, egCtx := errgroup.WithContext(ctx)
		if *metricsAddr != "" {
			r := chi.NewRouter()
			r.Handle("/metrics", promhttp.Handler())
			r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			srv := &http.Server{Addr: *metricsAddr, Handler: r}
			eg.Go(srv.ListenAndServe)
			eg.Go(func() error {
				<-egCtx.Done()
				return srv.Close()
			})
		}
		eg.Go(func() error {
			return kitejsonrpc.ServeRWC(egCtx, rwc, s)
		})
		return eg.Wait()
	}
	return cmd
}

type readWriteCloser struct {
	read  func([]byte) (int, error)
	write func([]byte) (int, error)
	close func() error
}

func (rwc *readWriteCloser) Read(p []byte) (int, error) {
	return rwc.read(p)
}

func (rwc *readWriteCloser) Write(p []byte) (int, error) {
	return rwc.write(p)
}

func (rwc *readWriteCloser) Close() error {
	return rwc.close()
}
