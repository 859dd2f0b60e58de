package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scbrown/irs/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server exposing this store",
	Long: `Serve starts an HTTP server wrapping the local store and exposes
it over the network. This lets a peer store sync against it without
direct filesystem access to the store root.

The server exposes a JSON API at /api/v1/ for querying invocations and
for the sync protocol's id-listing, fetch and push endpoints, plus a
health check at /api/v1/health.

Point another irs instance's remote_url config key (or its
--remote-url flag on sync push/pull) at this server's address.`,
	Example: `  irs serve
  irs serve --addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		srv := server.New(s)

		ln, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", serveAddr, err)
		}

		fmt.Fprintf(os.Stderr, "irs serve listening on %s\n", ln.Addr())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Serve(ln)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "shutting down...")
			return srv.Shutdown(context.Background())
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7273", "address to listen on (host:port)")
	rootCmd.AddCommand(serveCmd)
}
