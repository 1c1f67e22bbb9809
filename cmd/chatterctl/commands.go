package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatterd/internal/ipc"
)

// Terminal colors.
var c = struct {
	Reset, Bold, Dim, Red, Green, Yellow, Cyan string
}{
	Reset:  "\033[0m",
	Bold:   "\033[1m",
	Dim:    "\033[2m",
	Red:    "\033[31m",
	Green:  "\033[32m",
	Yellow: "\033[33m",
	Cyan:   "\033[36m",
}

func printSection(title string) {
	fmt.Printf("\n%s%s %s %s\n\n", c.Bold, c.Cyan, title, c.Reset)
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", c.Red, message, c.Reset)
}

func cmdStatus() {
	client := connect()
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		printError(fmt.Sprintf("Failed to get status: %v", err))
		os.Exit(1)
	}

	printSection("DAEMON STATUS")

	fmt.Printf("  %sVersion%s   %s%s%s\n", c.Dim, c.Reset, c.Cyan, status.Version, c.Reset)
	fmt.Printf("  %sUptime%s    %s\n", c.Dim, c.Reset, status.Uptime.Round(time.Second))
	fmt.Printf("  %sStarted%s   %s\n", c.Dim, c.Reset, status.StartedAt.Format(time.RFC3339))
	fmt.Printf("  %sPolicy%s    %s\n", c.Dim, c.Reset, status.Policy)

	switch {
	case !status.Capturing:
		fmt.Printf("  %sState%s     %s%sSTOPPED%s\n", c.Dim, c.Reset, c.Bold, c.Red, c.Reset)
	case status.Paused:
		fmt.Printf("  %sState%s     %s%sPAUSED%s\n", c.Dim, c.Reset, c.Bold, c.Yellow, c.Reset)
	default:
		fmt.Printf("  %sState%s     %s%sFILTERING%s\n", c.Dim, c.Reset, c.Bold, c.Green, c.Reset)
	}

	fmt.Printf("  %sEvents%s    %d\n", c.Dim, c.Reset, status.EventsTotal)
	fmt.Printf("  %sBlocked%s   %d\n", c.Dim, c.Reset, status.BlockedTotal)

	if len(status.Devices) > 0 {
		printSection("DEVICES")
		for _, dev := range status.Devices {
			fmt.Printf("  %s\n", dev)
		}
	}
	fmt.Println()
}

func cmdStats(sinceMs int64) {
	client := connect()
	defer client.Close()

	stats, err := client.Stats(sinceMs)
	if err != nil {
		printError(fmt.Sprintf("Failed to get statistics: %v", err))
		os.Exit(1)
	}

	printKeyTable(stats)
}

func cmdTop(limit int) {
	client := connect()
	defer client.Close()

	stats, err := client.TopKeys(limit)
	if err != nil {
		printError(fmt.Sprintf("Failed to get top keys: %v", err))
		os.Exit(1)
	}

	printKeyTable(stats)
}

func printKeyTable(stats *ipc.StatsResponse) {
	printSection("KEY STATISTICS")

	fmt.Printf("  %sTotal events%s   %d\n", c.Dim, c.Reset, stats.EventsTotal)
	fmt.Printf("  %sTotal blocked%s  %d\n", c.Dim, c.Reset, stats.BlockedTotal)
	fmt.Println()

	if len(stats.Keys) == 0 {
		fmt.Printf("  %sNo chatter recorded. Your keyboard looks healthy.%s\n\n", c.Dim, c.Reset)
		return
	}

	fmt.Printf("  %s%-12s %10s %10s  %s%s\n", c.Dim, "KEY", "PRESSES", "BLOCKED", "LAST BLOCKED", c.Reset)
	for _, k := range stats.Keys {
		last := "-"
		if !k.LastBlocked.IsZero() {
			last = k.LastBlocked.Format("2006-01-02 15:04:05")
		}
		blocked := fmt.Sprintf("%10d", k.BlockedCount)
		if k.BlockedCount > 0 {
			blocked = c.Red + blocked + c.Reset
		}
		fmt.Printf("  %-12s %10d %s  %s\n", k.KeyName, k.PressCount, blocked, last)
	}
	fmt.Println()
}

func cmdResetStats() {
	client := connect()
	defer client.Close()

	if err := client.ResetStats(); err != nil {
		printError(fmt.Sprintf("Failed to reset statistics: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%s✓ Statistics cleared%s\n", c.Green, c.Reset)
}

func cmdConfig() {
	client := connect()
	defer client.Close()

	cfg, err := client.GetConfig()
	if err != nil {
		printError(fmt.Sprintf("Failed to get configuration: %v", err))
		os.Exit(1)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		printError(fmt.Sprintf("Failed to render configuration: %v", err))
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func cmdReload() {
	client := connect()
	defer client.Close()

	if err := client.ReloadConfig(); err != nil {
		printError(fmt.Sprintf("Reload failed: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%s✓ Configuration reloaded%s\n", c.Green, c.Reset)
}

func cmdSetPolicy(policy string) {
	client := connect()
	defer client.Close()

	if err := client.SetPolicy(policy); err != nil {
		printError(fmt.Sprintf("Failed to set policy: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%s✓ Policy set to %s%s\n", c.Green, policy, c.Reset)
}

func cmdPauseResume(pause bool) {
	client := connect()
	defer client.Close()

	if pause {
		if err := client.PauseCapture(); err != nil {
			printError(fmt.Sprintf("Failed to pause: %v", err))
			os.Exit(1)
		}
		fmt.Printf("%s✓ Filtering paused%s %s(all key events pass through)%s\n",
			c.Green, c.Reset, c.Dim, c.Reset)
		return
	}
	if err := client.ResumeCapture(); err != nil {
		printError(fmt.Sprintf("Failed to resume: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%s✓ Filtering resumed%s\n", c.Green, c.Reset)
}

func cmdDevices() {
	client := connect()
	defer client.Close()

	devices, err := client.ListDevices()
	if err != nil {
		printError(fmt.Sprintf("Failed to list devices: %v", err))
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Printf("%sNo keyboard devices found.%s\n", c.Dim, c.Reset)
		return
	}
	for _, dev := range devices {
		fmt.Println(dev)
	}
}

// cmdWatch streams blocked-press events until interrupted.
func cmdWatch() {
	client := connect()
	defer client.Close()

	if err := client.Subscribe(ipc.EventKeyBlocked); err != nil {
		printError(fmt.Sprintf("Failed to subscribe: %v", err))
		os.Exit(1)
	}

	fmt.Printf("%s%s WATCHING FOR BLOCKED PRESSES %s\n", c.Bold, c.Green, c.Reset)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			return
		case ev, ok := <-client.Events():
			if !ok {
				printError("Connection to daemon lost")
				os.Exit(1)
			}
			if ev.Type != ipc.EventKeyBlocked {
				continue
			}
			var blocked ipc.KeyBlockedEvent
			if raw, err := ipc.Encode(ev.Data); err == nil {
				ipc.Decode(raw, &blocked)
			}
			fmt.Printf("[%s] %s%-12s%s delta=%dms blocked=%d\n",
				ev.Timestamp.Format("15:04:05"),
				c.Red, blocked.KeyName, c.Reset,
				blocked.DeltaMs, blocked.BlockedSeen)
		}
	}
}

func cmdPing() {
	client := connect()
	defer client.Close()

	latency, err := client.Ping()
	if err != nil {
		fmt.Printf("  %sDaemon%s  %s%sNOT RESPONDING%s (%v)\n", c.Dim, c.Reset, c.Bold, c.Red, c.Reset, err)
		os.Exit(1)
	}
	fmt.Printf("  %sDaemon%s  %s%sRUNNING%s (latency: %s)\n",
		c.Dim, c.Reset, c.Bold, c.Green, c.Reset, latency.Round(time.Microsecond))
}

func cmdStop() {
	client := connect()
	defer client.Close()

	if err := client.Shutdown(); err != nil {
		printError(fmt.Sprintf("Shutdown failed: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%s✓ Daemon stopping%s\n", c.Green, c.Reset)
}
