package main

import (
	"context"
	"strconv"

	"github.com/goliatone/go-botpoll/adapters/gocommand"
	"github.com/goliatone/go-botpoll/core"

	"github.com/spf13/cobra"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll updates until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			var a *app
			consumer := core.ConsumerFunc(func(_ context.Context, update *core.Update) bool {
				a.logger.Info("botpoll: update received",
					"update_id", update.UpdateID,
					"kind", string(update.Kind()),
				)
				return true
			})
			a, err = newApp(ctx, opts, consumer)
			if err != nil {
				return err
			}
			defer func() { err = joinClose(err, a) }()

			if err := a.bot.StartPolling(ctx, a.bot.BotID()); err != nil {
				return err
			}
			<-a.bot.Done()
			return a.bot.Err()
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the engine status, stored cursor and throttle state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := newApp(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer func() { err = joinClose(err, a) }()

			status, err := gocommand.EngineStatus(cmd.Context(), a.bot.BotID())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newCursorCommand(opts *rootOptions) *cobra.Command {
	cursor := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or move the stored cursor",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the stored cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := newApp(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer func() { err = joinClose(err, a) }()

			result, err := gocommand.LoadCursor(cmd.Context(), a.bot.BotID())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	var force bool
	set := &cobra.Command{
		Use:   "set <offset>",
		Short: "Store a cursor; without --force it only moves forward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			offset, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer func() { err = joinClose(err, a) }()

			return gocommand.SaveCursor(cmd.Context(), a.bot.BotID(), offset, force)
		},
	}
	set.Flags().BoolVar(&force, "force", false, "allow moving the cursor backwards")

	cursor.AddCommand(get, set)
	return cursor
}

func newMeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Print the bot account the token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := newApp(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer func() { err = joinClose(err, a) }()

			user, err := a.bot.Client().GetMe(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), user)
		},
	}
}
