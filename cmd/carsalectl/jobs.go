package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daya-auto/carsale/jobs"
)

func newJobsCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	withQueue := func(cmd *cobra.Command, fn func(JobQueue) error) error {
		cfg, err := e.config()
		if err != nil {
			return err
		}
		q, err := e.queue(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = q.Close() }()
		return fn(q)
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "trigger <name>",
		Short:     "Enqueue a job now instead of waiting for its schedule",
		Long:      "Enqueue a job now. Known jobs: " + strings.Join(jobs.Names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.Names,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, func(q JobQueue) error {
				id, err := q.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				cmd.Printf("enqueued %s id=%s\n", args[0], id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show counts for the default queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, func(q JobQueue) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Println(formatStats(stats))
				return nil
			})
		},
	})
	return cmd
}

func formatStats(s jobs.QueueStats) string {
	return fmt.Sprintf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d",
		s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
}
