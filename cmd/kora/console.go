package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/kora/internal/console"
	"github.com/nadzzz/kora/internal/message"
	grpctransport "github.com/nadzzz/kora/internal/transport/grpc"
)

var consoleAddr string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run an interview in the terminal",
	Long: `Run an interview in the terminal with typed answers. Without --addr the
interview runs in-process; with --addr the console drives a running daemon
over gRPC, sharing its session with the client page.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	consoleCmd.Flags().StringVar(&consoleAddr, "addr", "", "gRPC address of a running daemon (e.g. localhost:50051)")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if consoleAddr != "" {
		return runRemoteConsole(ctx, cmd)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := build(cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	c := console.New(s.dispatcher.Handle, cmd.InOrStdin(), cmd.OutOrStdout())
	c.Banner(s.providerStatus())
	return c.Run(ctx)
}

func runRemoteConsole(ctx context.Context, cmd *cobra.Command) error {
	client, err := grpctransport.Dial(consoleAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st, err := client.Check(cctx)
	if err != nil {
		return fmt.Errorf("daemon at %s not reachable: %w", consoleAddr, err)
	}
	if st != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("daemon at %s is %s", consoleAddr, st)
	}

	c := console.New(remoteHandler(client), cmd.InOrStdin(), cmd.OutOrStdout())
	c.Banner("已连接到 " + consoleAddr)
	return c.Run(ctx)
}

// remoteHandler turns refused actions into results carrying the current
// session, the way the in-process dispatcher reports them.
func remoteHandler(client *grpctransport.Client) console.Handler {
	return func(ctx context.Context, req *message.Request) (*message.Result, error) {
		res, err := client.Handle(ctx, req)
		if err == nil || res != nil {
			return res, err
		}
		switch status.Code(err) {
		case codes.FailedPrecondition, codes.InvalidArgument, codes.NotFound, codes.Unimplemented:
		default:
			return nil, err
		}
		snap, serr := client.Handle(ctx, &message.Request{Action: message.ActionSnapshot})
		if serr != nil {
			return nil, serr
		}
		snap.RequestID = req.ID
		snap.Action = req.Action
		snap.Error = status.Convert(err).Message()
		return snap, err
	}
}
