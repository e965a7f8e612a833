package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hupe1980/replanmesh"
	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/human"
	"github.com/hupe1980/replanmesh/internal/telemetry"
	"github.com/hupe1980/replanmesh/runner"
	"github.com/spf13/cobra"
)

type runFlags struct {
	session string
	quiet   bool
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a prompt, or start an interactive session when no prompt is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runE(ctx, cmd, flags, rf, strings.TrimSpace(strings.Join(args, " ")))
		},
	}

	cmd.Flags().StringVarP(&rf.session, "session", "s", "cli", "Session id carrying the conversation between prompts")
	cmd.Flags().BoolVarP(&rf.quiet, "quiet", "q", false, "Only print answers")

	return cmd
}

func runE(ctx context.Context, cmd *cobra.Command, flags *globalFlags, rf *runFlags, prompt string) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	logger := cfg.Logger().WithComponent("cli")

	tcfg := cfg.Telemetry
	tcfg.Writer = cmd.ErrOrStderr()
	tp, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()

	p, err := newPlanner(cfg, logger, tp.Tracer)
	if err != nil {
		return err
	}

	console := human.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())

	mesh, err := replanmesh.New(p, builtinTools(), func(o *replanmesh.Options) {
		o.MaxIterations = cfg.MaxIterations
		o.ToolTimeout = cfg.ToolTimeout
		o.InterventionTimeout = cfg.InterventionTimeout
		o.MaxConcurrentRuns = cfg.MaxConcurrentRuns
		o.Gateway = console
		o.FormatIntervention = formatIntervention
		o.Logger = logger
		o.Tracer = tp.Tracer
	})
	if err != nil {
		return err
	}
	defer mesh.Close()

	if !rf.quiet {
		obs := &observer{w: console}
		mesh.Emitter().On("*", obs.handle)
	}

	ask := func(text string) error {
		resp, err := mesh.Run(ctx, runner.Input{Prompt: text, SessionID: rf.session})
		if err != nil {
			if errors.Is(err, core.ErrCancelled) && ctx.Err() != nil {
				return ctx.Err()
			}
			console.Write("Agent (error): ", err.Error())
			return err
		}
		console.Write("Agent: ", resp.Text)
		return nil
	}

	if prompt != "" {
		return ask(prompt)
	}

	console.Write("Agent: ", "What can I do for you? (Ctrl-D to quit)")
	for {
		line, err := console.ReadLine(ctx)
		switch {
		case errors.Is(err, human.ErrClosed), ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := ask(line); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

func formatIntervention(req core.InterventionRequest) string {
	return fmt.Sprintf("[%s] %s", req.Type, req.Message)
}
