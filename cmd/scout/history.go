package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/scout/pkg/conversation"
)

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	var (
		service string
		clear   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print or clear a stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := conversation.ValidateKey(service); err != nil {
				return err
			}
			cfg, err := loadConfig(flags, false)
			if err != nil {
				return err
			}
			store, err := openStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			return showHistory(cmd, store, service, clear)
		},
	}
	cmd.Flags().StringVar(&service, "service", conversation.DefaultKey, "Conversation key")
	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the conversation instead of printing it")
	return cmd
}

func showHistory(cmd *cobra.Command, store conversation.Store, key string, clear bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if clear {
		if err := store.Clear(ctx, key); err != nil {
			return fmt.Errorf("failed to clear %q: %w", key, err)
		}
		fmt.Fprintf(out, "Cleared conversation %q\n", key)
		return nil
	}

	msgs, err := store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load %q: %w", key, err)
	}
	meta, err := store.Meta(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load %q metadata: %w", key, err)
	}

	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%s: %d messages, %s", key, meta.MessageCount, meta.Status)))
	r := newRenderer(out)
	for _, m := range msgs {
		r.Message(m)
	}
	return nil
}
