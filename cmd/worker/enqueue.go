package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"logqueue/internal/model"
)

func newEnqueueCommand(a *app) *cobra.Command {
	var message, level string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Place one log record on the queue",
		Example: `  worker enqueue --queue-url $QUEUE_URL --message "disk almost full" --level WARNING`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Queue.URL == "" {
				return errors.New("queue url is required (--queue-url or QUEUE_URL)")
			}
			lvl, err := model.ParseLevel(level)
			if err != nil {
				return err
			}
			p, err := newProducer(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			id, err := p.Enqueue(cmd.Context(), message, lvl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "log message")
	cmd.Flags().StringVarP(&level, "level", "l", "INFO", "log level (DEBUG|INFO|WARNING|ERROR|CRITICAL)")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
