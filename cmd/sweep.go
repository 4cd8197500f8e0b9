package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"secondserve/lifecycle"
	"secondserve/notify"
)

// sweepCmd expires overdue posts once. Push subscribers are notified; live
// websocket clients belong to the serving processes and are not reached.
func sweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire every overdue food post once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			defer app.close()

			var publisher notify.Publisher = notify.Discard{}
			if app.cfg.PushEnabled() {
				hub := notify.NewHub(app.logger, notify.WithSinks(
					notify.NewWebPushSink(app.subs, app.cfg.VAPIDPublicKey, app.cfg.VAPIDPrivateKey, app.cfg.VAPIDSubject, app.logger),
				))
				hub.Start()
				defer hub.Close()
				publisher = hub
			}

			engine := lifecycle.NewEngine(app.posts, publisher, app.options...)
			n, err := engine.SweepOnce(ctx)
			if err != nil {
				return err
			}
			app.logger.Info("Sweep finished", zap.Int("expired", n))
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d food post(s)\n", n)
			return nil
		},
	}
}
