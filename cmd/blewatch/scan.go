package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/blewatch/internal/registry"
	"github.com/srg/blewatch/internal/source/goble"
	"github.com/srg/blewatch/pkg/blewatch"
	"github.com/srg/blewatch/pkg/config"
	"github.com/srg/blewatch/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE devices",
	Long: `Scan for nearby Bluetooth Low Energy devices.

Discovery runs duty-cycled: the radio alternates active-scan and rest phases
per the battery profile, while discovered devices stream to the terminal and
the history database. Press Ctrl+C, or pass --duration, to end the session
and print the device table and session summary.`,
	RunE: runScan,
}

var (
	scanSessionLength time.Duration
	scanServices      []string
	scanMinRSSI       int
	scanWindow        time.Duration
	scanRest          time.Duration
	scanContinuous    bool
	scanBackground    bool
	scanWatch         bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanSessionLength, "duration", "d", 0, "Session length (0 = until interrupted)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by advertised service UUIDs")
	scanCmd.Flags().IntVar(&scanMinRSSI, "min-rssi", scanner.DefaultMinRSSI, "Discard observations weaker than this dBm")
	scanCmd.Flags().DurationVar(&scanWindow, "scan-window", 0, "Active-scan phase length (overrides profile)")
	scanCmd.Flags().DurationVar(&scanRest, "rest", 0, "Rest phase length (overrides profile)")
	scanCmd.Flags().BoolVar(&scanContinuous, "continuous", false, "Disable duty cycling, scan continuously")
	scanCmd.Flags().BoolVar(&scanBackground, "background-profile", false, "Start with the low-power background profile")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Print discovery events as they happen")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	profile := cfg.Battery
	if scanBackground {
		profile = scanner.BackgroundProfile()
	}
	if scanWindow > 0 {
		profile.ScanDuration = scanWindow
	}
	if scanRest > 0 {
		profile.RestDuration = scanRest
	}
	if cmd.Flags().Changed("min-rssi") {
		profile.MinRSSI = scanMinRSSI
	}
	if scanContinuous {
		profile.DutyCycling = false
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	gateway, err := openGateway(cmd, cfg, logger)
	if err != nil {
		return err
	}

	engine := blewatch.New(blewatch.Options{
		Source:          goble.NewSource(logger),
		Gateway:         gateway,
		Logger:          logger,
		Profile:         profile,
		HistoryCapacity: cfg.HistoryCapacity,
	})
	defer engine.Close()

	scanCfg := cfg.Scan
	scanCfg.ScanDuration = profile.ScanDuration
	if len(scanServices) > 0 {
		scanCfg.ServiceUUIDs = scanServices
	}

	if err := engine.Start(scanCfg); err != nil {
		return err
	}

	fmt.Printf("Scanning (active %s / rest %s, min RSSI %d dBm)... press Ctrl+C to stop\n",
		profile.ScanDuration, profile.RestDuration, profile.MinRSSI)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	var timeout <-chan time.Time
	if scanSessionLength > 0 {
		t := time.NewTimer(scanSessionLength)
		defer t.Stop()
		timeout = t.C
	}

	events := engine.Events()
loop:
	for {
		select {
		case <-interrupt:
			break loop
		case <-timeout:
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			printEvent(ev)
		}
	}

	engine.Stop()
	printDeviceTable(engine.Devices(registry.View{SortBy: registry.SortByRSSI, Direction: registry.Descending}))
	printSummary(engine)
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func printEvent(ev blewatch.Event) {
	if !scanWatch {
		return
	}

	switch ev.Type {
	case blewatch.EventDeviceDiscovered:
		color.Green("+ %s  %s  %d dBm  (%d devices)",
			ev.Device.ID, ev.Device.Name, ev.Device.RSSI, ev.DeviceCount)
	case blewatch.EventScanError:
		color.Red("! %v", ev.Err)
	case blewatch.EventAggregateTick:
		if ev.Stats.AvgRSSI != nil {
			color.Cyan("~ %d devices, avg %.1f dBm, %d types",
				ev.Stats.DeviceCount, *ev.Stats.AvgRSSI, ev.Stats.DistinctTypes)
		}
	}
}

func printDeviceTable(devices []registry.DeviceRecord) {
	if len(devices) == 0 {
		fmt.Println("\nNo devices discovered.")
		return
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tRSSI\tSEEN\tLAST SEEN")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d dBm\t%d\t%s\n",
			d.ID, d.Name, registry.Classify(d), d.RSSI, d.DetectionCount,
			d.LastSeen.Format(time.TimeOnly))
	}
	w.Flush()
}

func printSummary(engine *blewatch.Engine) {
	sess, ok := engine.Session()
	if !ok {
		return
	}

	bold := color.New(color.Bold)
	fmt.Println()
	bold.Printf("Session %s: %d devices in %s\n",
		sess.ID, sess.DevicesDiscovered, sess.Duration.Round(time.Millisecond))

	stats := engine.Stats()
	if stats.AvgRSSI != nil {
		fmt.Printf("RSSI avg %.1f dBm (min %d, max %d)\n", *stats.AvgRSSI, *stats.MinRSSI, *stats.MaxRSSI)
	}
	for pair := stats.TypeHistogram.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Printf("  %-24s %d\n", pair.Key, pair.Value)
	}
}
