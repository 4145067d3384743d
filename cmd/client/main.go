package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/gorelay/internal/checksum"
	"github.com/Tyrowin/gorelay/internal/cipher"
	"github.com/Tyrowin/gorelay/internal/client"
	"github.com/Tyrowin/gorelay/internal/logging"
	"github.com/Tyrowin/gorelay/internal/transport"
)

var rootCmd = &cobra.Command{
	Use:   "gorelay-client <host:port | ws://host:port/ws>",
	Short: "Chat through a gorelay server",
	Long: `gorelay-client connects to a relay and reads commands from stdin:

  all:message     send to everyone
  <alias>:message send to one user
  who:            list online users
  reg:newalias    change your alias
  bye:            leave`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runClient,
}

func init() {
	rootCmd.Flags().String("alias", "", "Alias to register (prompted when empty)")
	rootCmd.Flags().String("encoding", cipher.Cleartext{}.Name(), "Message cipher ("+strings.Join(cipher.Names(), ", ")+")")
	rootCmd.Flags().Int("max-resends", checksum.DefaultMaxAttempts, "Retransmissions allowed per packet")
	rootCmd.Flags().Duration("timeout", 10*time.Second, "Connect timeout")
}

func dial(ctx context.Context, addr string) (transport.Channel, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return transport.DialWebSocket(ctx, addr, nil)
	}
	return transport.DialTCP(ctx, addr)
}

func runClient(cmd *cobra.Command, args []string) error {
	logger := logging.ConfigureRuntime("gorelay-client")
	if _, set := logging.ParseLevel(os.Getenv(logging.EnvLogLevel)); !set {
		logger = logger.Level(zerolog.WarnLevel)
	}

	alias, _ := cmd.Flags().GetString("alias")
	encoding, _ := cmd.Flags().GetString("encoding")
	maxResends, _ := cmd.Flags().GetInt("max-resends")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ciph, err := cipher.Lookup(encoding)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	ch, err := dial(dialCtx, args[0])
	cancel()
	if err != nil {
		return fmt.Errorf("could not establish connection to the chat: %w", err)
	}
	defer ch.Close()

	c := client.New(ch, client.Options{
		Cipher:     ciph,
		MaxResends: maxResends,
		Out:        cmd.OutOrStdout(),
		Logger:     &logger,
	})
	stdin := client.NewLineSource(cmd.InOrStdin())

	if err := c.Login(ctx, stdin, alias); err != nil {
		return err
	}

	return c.Run(ctx, stdin)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
