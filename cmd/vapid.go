package cmd

import (
	"fmt"
	"io"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
)

func vapidCmd() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "vapid",
		Short: "Generate a VAPID key pair for web push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeVAPIDKeys(cmd.OutOrStdout(), subject)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "mailto:admin@secondserve.app", "Contact URL or mailto: sent to push services")
	return cmd
}

func writeVAPIDKeys(w io.Writer, subject string) error {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("failed to generate VAPID keys: %w", err)
	}

	fmt.Fprintln(w, "# Add these to your .env file")
	fmt.Fprintf(w, "VAPID_PUBLIC_KEY=%s\n", publicKey)
	fmt.Fprintf(w, "VAPID_PRIVATE_KEY=%s\n", privateKey)
	fmt.Fprintf(w, "VAPID_SUBJECT=%s\n", subject)
	return nil
}
