package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"order_pacer/internal/model"
	"order_pacer/internal/schedule"
)

func newPreviewCmd(flags *rootFlags) *cobra.Command {
	var (
		count int
		seed  int64
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print a generated day schedule without submitting anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 0 || count > model.MaxRequestsLimit {
				return fmt.Errorf("--count must be between 0 and %d", model.MaxRequestsLimit)
			}
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			loc, err := cfg.Schedule.Location()
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			now := time.Now().In(loc)
			times := schedule.Generate(count, now, rand.New(rand.NewSource(seed)))

			out := cmd.OutOrStdout()
			night, _ := schedule.DefaultPolicy().Split(count)
			fmt.Fprintf(out, "%d requests from %s (night: %d)\n", len(times), now.Format("2006-01-02 15:04:05"), night)
			for i, t := range times {
				fmt.Fprintf(out, "%3d  %s\n", i+1, t.In(loc).Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", model.DefaultMaxRequests, "number of requests to schedule")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one from the clock)")
	return cmd
}
