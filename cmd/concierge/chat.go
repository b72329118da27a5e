package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/concierge"
	"github.com/hupe1980/concierge/channel"
	"github.com/hupe1980/concierge/config"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/doorman"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/metrics"
	"github.com/hupe1980/concierge/session"
)

type chatFlags struct {
	message   string
	sessionID string
	debug     bool
}

func newChatCommand(root *rootFlags) *cobra.Command {
	flags := &chatFlags{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the virtual doorman",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, root, flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&flags.message, "message", "m", "", "Send a single message (non-interactive mode)")
	cmd.Flags().StringVarP(&flags.sessionID, "session", "s", "", "Session id (random when empty)")
	cmd.Flags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runChat(ctx context.Context, root *rootFlags, flags *chatFlags, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if flags.debug {
		cfg.Log.Level = "debug"
	}
	logger := logging.NewLogger(cfg.LoggerConfig())

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	m, err := newModel(cfg)
	if err != nil {
		return err
	}

	var hooks []metrics.Hook
	if cfg.Metrics.Enabled {
		promReg, hook := newMetrics(cfg)
		if _, err := serveMetrics(ctx, cfg.Metrics.Addr, promReg, logger); err != nil {
			return err
		}
		hooks = append(hooks, hook)
	}

	c, err := concierge.New(func(o *concierge.Options) {
		o.Model = m
		o.Repository = repo
		o.OwnerContact = cfg.Building.OwnerContact
		o.Agents = []func(o *doorman.Options){func(o *doorman.Options) {
			o.Building = cfg.Building.Name
		}}
		o.Session = []func(o *session.Options){func(o *session.Options) {
			applySessionConfig(o, cfg)
			o.Hooks = hooks
		}}
		o.Logger = logger
	})
	if err != nil {
		return err
	}

	id := flags.sessionID
	if id == "" {
		id = core.NewID()
	}

	if flags.message != "" {
		replies, err := c.Converse(ctx, id, flags.message)
		for _, r := range replies {
			for _, u := range r.Utterances {
				fmt.Fprintln(out, channel.Format(u))
			}
		}
		return err
	}

	console, err := channel.NewConsole(func(o *channel.ConsoleOptions) {
		if rc, ok := in.(io.ReadCloser); ok {
			o.Stdin = rc
		}
		o.Stdout = out
	})
	if err != nil {
		return err
	}
	defer func() { _ = console.Close() }()

	fmt.Fprintf(out, "Connected to %s (session %s). Type \"exit\" to leave.\n\n", cfg.Building.Name, id)
	_, done, err := c.Serve(ctx, id, console)
	if err != nil {
		return err
	}

	err = <-done
	fmt.Fprintln(out, "\nGoodbye.")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func applySessionConfig(o *session.Options, cfg *config.Config) {
	sc := cfg.Session
	o.EntryAgent = sc.EntryAgent
	o.HandoffCap = sc.HandoffCap
	o.Window = sc.Window
	o.MaxToolHops = sc.MaxToolHops
	o.ToolTimeout = sc.ToolTimeout
	o.InputBuffer = sc.InputBuffer
	o.TranscriptDir = sc.TranscriptDir
	o.Greeting = sc.Greeting
	if o.Greeting == "" {
		o.Greeting = doorman.Greeting
	}
}
