package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/scout/pkg/agent/compaction"
	"github.com/entrhq/scout/pkg/agent/doer"
	"github.com/entrhq/scout/pkg/agent/orchestrator"
	"github.com/entrhq/scout/pkg/agent/tools"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/conversation"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/tokenizer"
	"github.com/entrhq/scout/pkg/stream"
	"github.com/entrhq/scout/pkg/tools/browser"
	"github.com/entrhq/scout/pkg/tools/session"
	"github.com/entrhq/scout/pkg/types"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	var (
		service   string
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run one thinker/doer invocation in the terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conversation.ValidateKey(service); err != nil {
				return err
			}
			cfg, err := loadConfig(flags, true)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, flags, !noBrowser)
			if err != nil {
				return err
			}
			defer a.Close()

			r := newRenderer(cmd.OutOrStdout())
			return runGoal(ctx, runOptions{
				goal:     strings.Join(args, " "),
				key:      service,
				cfg:      cfg.Orchestrator,
				store:    a.store,
				router:   a.router,
				tools:    a.tools,
				renderer: r,
			})
		},
	}
	cmd.Flags().StringVar(&service, "service", conversation.DefaultKey, "Conversation key to continue")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Run without browser tools")
	return cmd
}

type runOptions struct {
	goal     string
	key      string
	cfg      config.OrchestratorConfig
	store    conversation.Store
	router   *llm.Router
	tools    *tools.ToolSet
	renderer *renderer
}

// runGoal continues the stored conversation with goal, renders the events
// as they arrive and stores the outcome.
func runGoal(ctx context.Context, opts runOptions) error {
	rec := conversation.NewRecorder(opts.store, nil)
	user := types.NewUserMessage(opts.goal)
	history := append(rec.Load(ctx, opts.key), user)
	rec.Append(ctx, opts.key, user)

	delegate := &doer.Bound{
		Executor: doer.NewExecutor(opts.router.For(llm.RoleDoer), doer.WithMaxSteps(opts.cfg.DoerMaxSteps)),
		Tools:    opts.tools.Merge(session.NewToolSet(opts.store, conversation.DefaultKey)),
		MaxSteps: opts.cfg.DoerMaxSteps,
	}
	orch := orchestrator.New(opts.router.For(llm.RolePlanner), delegate,
		orchestrator.WithMaxSteps(opts.cfg.MaxSteps),
		orchestrator.WithRequireDelegation(opts.cfg.RequireDelegation),
		orchestrator.WithCompactor(compaction.NewCompactor(opts.cfg.KeepToolOutputs, tokenizer.New())),
	)

	sink := stream.NewChannelSink(ctx, 64)
	var (
		out    *orchestrator.Outcome
		runErr error
	)
	go func() {
		defer sink.Close()
		out, runErr = orch.Stream(browser.WithSessionKey(ctx, opts.key), history, stream.NewEmitter(sink))
	}()
	for ev := range sink.Events() {
		opts.renderer.Event(ev)
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	rec.Append(context.WithoutCancel(ctx), opts.key, out.Message())
	return nil
}
