package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blewatch/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored aggregate data points",
	Long: `Show aggregate data points from the history database.

Each row is one time-series sample: device count, RSSI distribution, and
distinct device types at capture time. Rows print ascending by timestamp.`,
	RunE: runHistory,
}

var (
	historySince time.Duration
	historyLimit int
)

func init() {
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "Only points newer than this age (0 = all)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Maximum rows (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	gateway, err := openGateway(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer gateway.Close()

	query := store.DataPointQuery{Limit: historyLimit}
	if historySince > 0 {
		start := time.Now().Add(-historySince)
		query.Start = &start
	}

	points, err := gateway.DataPoints(query)
	if err != nil {
		return fmt.Errorf("failed to query data points: %w", err)
	}
	if len(points) == 0 {
		fmt.Println("No data points stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tDEVICES\tAVG RSSI\tMIN\tMAX\tTYPES")
	for _, p := range points {
		avg, min, max := "-", "-", "-"
		if p.AvgRSSI != nil {
			avg = fmt.Sprintf("%.1f", *p.AvgRSSI)
			min = fmt.Sprintf("%d", *p.MinRSSI)
			max = fmt.Sprintf("%d", *p.MaxRSSI)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d\n",
			p.Timestamp.Format(time.RFC3339), p.DeviceCount, avg, min, max, p.DistinctTypes)
	}
	return w.Flush()
}
