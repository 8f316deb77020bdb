package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/pkg/devserver"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve <catalog-dir>",
	Short: "Serve a catalog directory for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := devserver.New(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println(i18n.Tf("cmd.serve.listening", "Dir", args[0], "Addr", serveAddr))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(serveAddr)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Println(i18n.T("cmd.serve.stopped"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", devserver.DefaultAddr, "listen address")
}
