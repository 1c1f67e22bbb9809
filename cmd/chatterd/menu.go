package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chatterd/internal/ipc"
)

// Menu colors and formatting (ANSI escape codes)
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
)

const banner = `
        _           _   _               _
    ___| |__   __ _| |_| |_ ___ _ __ __| |
   / __| '_ \ / _` + "`" + ` | __| __/ _ \ '__/ _` + "`" + ` |
  | (__| | | | (_| | |_| ||  __/ | | (_| |
   \___|_| |_|\__,_|\__|\__\___|_|  \__,_|`

// Menu is the interactive terminal menu, driven over IPC against a
// running daemon.
type Menu struct {
	reader *bufio.Reader
	client *ipc.Client
	status *ipc.StatusResponse
}

// NewMenu creates the interactive menu.
func NewMenu() *Menu {
	return &Menu{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run starts the interactive menu loop.
func (m *Menu) Run() {
	m.refreshStatus()

	for {
		m.clearScreen()
		m.printHeader()
		m.printStatus()
		m.printMainMenu()

		choice := m.prompt("Select an option")

		switch strings.ToLower(strings.TrimSpace(choice)) {
		case "1", "status":
			m.runStatus()
		case "2", "stats":
			m.runStats()
		case "3", "top":
			m.runTopKeys()
		case "4", "pause", "resume":
			m.runPauseResume()
		case "5", "policy":
			m.runSetPolicy()
		case "6", "reload":
			m.runReload()
		case "7", "devices":
			m.runDevices()
		case "8", "watch":
			m.runWatch()
		case "9", "reset":
			m.runResetStats()
		case "h", "help", "?":
			m.showHelp()
		case "q", "quit", "exit", "0":
			m.printGoodbye()
			return
		default:
			m.printError("Invalid option. Press Enter to continue...")
			m.waitForEnter()
		}

		m.refreshStatus()
	}
}

// refreshStatus reconnects if needed and fetches daemon status.
func (m *Menu) refreshStatus() {
	if m.client == nil {
		client, err := connect()
		if err != nil {
			m.status = nil
			return
		}
		m.client = client
	}

	status, err := m.client.Status()
	if err != nil {
		m.client.Close()
		m.client = nil
		m.status = nil
		return
	}
	m.status = status
}

// clearScreen clears the terminal (works on most terminals)
func (m *Menu) clearScreen() {
	fmt.Print("\033[H\033[2J")
}

func (m *Menu) printHeader() {
	fmt.Println(colorCyan + banner + colorReset)
	fmt.Println()
	fmt.Println(colorBold + "  Keyboard Chatter Filter" + colorReset)
	fmt.Println(colorDim + "  Version " + version + colorReset)
	fmt.Println()
}

func (m *Menu) printStatus() {
	fmt.Println(colorBold + "─────────────────────────────────────────────" + colorReset)
	fmt.Println(colorBold + " DAEMON STATUS" + colorReset)
	fmt.Println(colorBold + "─────────────────────────────────────────────" + colorReset)

	if m.status == nil {
		fmt.Println(colorYellow + " ⚠  Daemon not running - start with 'chatterd start'" + colorReset)
	} else {
		fmt.Printf(" %s Running: v%s, up %s\n",
			m.checkmark(true), m.status.Version, m.status.Uptime.Round(time.Second))
		fmt.Printf(" %s Policy: %s\n", m.checkmark(true), m.status.Policy)

		if m.status.Paused {
			fmt.Printf(" %s Filtering: %s\n", m.warning(), colorYellow+"PAUSED"+colorReset)
		} else {
			fmt.Printf(" %s Filtering: %s\n", m.checkmark(true), colorGreen+"active"+colorReset)
		}

		fmt.Printf(" %s Events: %d seen, %d blocked\n",
			m.checkmark(true), m.status.EventsTotal, m.status.BlockedTotal)

		if len(m.status.Devices) > 0 {
			fmt.Printf(" %s Devices: %d keyboard(s)\n", m.checkmark(true), len(m.status.Devices))
		}
	}

	fmt.Println(colorBold + "─────────────────────────────────────────────" + colorReset)
	fmt.Println()
}

func (m *Menu) printMainMenu() {
	fmt.Println(colorBold + " MAIN MENU" + colorReset)
	fmt.Println()

	if m.status == nil {
		fmt.Println(colorDim + " [1] Status           (daemon not running)" + colorReset)
		fmt.Println(colorDim + " [2] Statistics       (daemon not running)" + colorReset)
		fmt.Println(colorDim + " [3] Top Keys         (daemon not running)" + colorReset)
		fmt.Println(colorDim + " [4] Pause/Resume     (daemon not running)" + colorReset)
		fmt.Println(colorDim + " [5] Policy           (daemon not running)" + colorReset)
		fmt.Println(colorDim + " [6] Reload           (daemon not running)" + colorReset)
		fmt.Println(colorDim + " [7] Devices          (daemon not running)" + colorReset)
		fmt.Println(colorDim + " [8] Watch            (daemon not running)" + colorReset)
		fmt.Println(colorDim + " [9] Reset Stats      (daemon not running)" + colorReset)
	} else {
		fmt.Println(colorCyan + " [1]" + colorReset + " Status            Show detailed daemon status")
		fmt.Println(colorCyan + " [2]" + colorReset + " Statistics        Per-key blocked counts")
		fmt.Println(colorCyan + " [3]" + colorReset + " Top Keys          Keys with the most chatter")
		if m.status.Paused {
			fmt.Println(colorYellow + " [4]" + colorReset + " Resume            " + colorYellow + "⚠ Filtering is paused" + colorReset)
		} else {
			fmt.Println(colorCyan + " [4]" + colorReset + " Pause             Suspend filtering")
		}
		fmt.Println(colorCyan + " [5]" + colorReset + " Policy            Switch decision policy")
		fmt.Println(colorCyan + " [6]" + colorReset + " Reload            Re-read the configuration file")
		fmt.Println(colorCyan + " [7]" + colorReset + " Devices           List captured keyboards")
		fmt.Println(colorCyan + " [8]" + colorReset + " Watch             Stream blocked presses live")
		fmt.Println(colorCyan + " [9]" + colorReset + " Reset Stats       Clear recorded statistics")
	}

	fmt.Println()
	fmt.Println(colorDim + " [H] Help    [Q] Quit" + colorReset)
	fmt.Println()
}

func (m *Menu) requireDaemon() bool {
	if m.client == nil {
		m.printError("Daemon not running. Start it with 'chatterd start'.")
		m.waitForEnter()
		return false
	}
	return true
}

func (m *Menu) runStatus() {
	if !m.requireDaemon() {
		return
	}

	status, err := m.client.Status()
	if err != nil {
		m.printError(err.Error())
		m.waitForEnter()
		return
	}

	fmt.Println()
	fmt.Printf(" Version:   %s\n", status.Version)
	fmt.Printf(" Started:   %s\n", status.StartedAt.Format(time.RFC1123))
	fmt.Printf(" Uptime:    %s\n", status.Uptime.Round(time.Second))
	fmt.Printf(" Policy:    %s\n", status.Policy)
	fmt.Printf(" Paused:    %v\n", status.Paused)
	fmt.Printf(" Events:    %d\n", status.EventsTotal)
	fmt.Printf(" Blocked:   %d\n", status.BlockedTotal)
	for _, dev := range status.Devices {
		fmt.Printf(" Device:    %s\n", dev)
	}
	fmt.Println()
	m.waitForEnter()
}

func (m *Menu) runStats() {
	if !m.requireDaemon() {
		return
	}

	stats, err := m.client.Stats(0)
	if err != nil {
		m.printError(err.Error())
		m.waitForEnter()
		return
	}

	m.printKeyTable(stats)
	m.waitForEnter()
}

func (m *Menu) runTopKeys() {
	if !m.requireDaemon() {
		return
	}

	limitStr := m.prompt("How many keys [10]")
	limit := 10
	if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
		limit = n
	}

	stats, err := m.client.TopKeys(limit)
	if err != nil {
		m.printError(err.Error())
		m.waitForEnter()
		return
	}

	m.printKeyTable(stats)
	m.waitForEnter()
}

func (m *Menu) printKeyTable(stats *ipc.StatsResponse) {
	fmt.Println()
	if len(stats.Keys) == 0 {
		fmt.Println(colorDim + " No chatter recorded. Your keyboard looks healthy." + colorReset)
		fmt.Println()
		return
	}

	fmt.Printf(" %-12s %10s %10s  %s\n", "KEY", "PRESSES", "BLOCKED", "LAST BLOCKED")
	for _, k := range stats.Keys {
		last := "-"
		if !k.LastBlocked.IsZero() {
			last = k.LastBlocked.Format("2006-01-02 15:04:05")
		}
		fmt.Printf(" %-12s %10d %10d  %s\n", k.KeyName, k.PressCount, k.BlockedCount, last)
	}
	fmt.Println()
}

func (m *Menu) runPauseResume() {
	if !m.requireDaemon() {
		return
	}

	var err error
	if m.status != nil && m.status.Paused {
		err = m.client.ResumeCapture()
	} else {
		err = m.client.PauseCapture()
	}
	if err != nil {
		m.printError(err.Error())
	} else {
		m.printSuccess("Done.")
	}
	m.waitForEnter()
}

func (m *Menu) runSetPolicy() {
	if !m.requireDaemon() {
		return
	}

	fmt.Println()
	fmt.Println(" Decision policy:")
	fmt.Println("   1. adaptive   Threshold tightens and relaxes with key state")
	fmt.Println("   2. pattern    Spots chatter by timing irregularity")
	choice := m.prompt("Choice [1]")

	policy := "adaptive"
	if strings.TrimSpace(choice) == "2" {
		policy = "pattern"
	}

	if err := m.client.SetPolicy(policy); err != nil {
		m.printError(err.Error())
	} else {
		m.printSuccess("Policy set to " + policy + ".")
	}
	m.waitForEnter()
}

func (m *Menu) runReload() {
	if !m.requireDaemon() {
		return
	}

	if err := m.client.ReloadConfig(); err != nil {
		m.printError(err.Error())
	} else {
		m.printSuccess("Configuration reloaded.")
	}
	m.waitForEnter()
}

func (m *Menu) runDevices() {
	if !m.requireDaemon() {
		return
	}

	devices, err := m.client.ListDevices()
	if err != nil {
		m.printError(err.Error())
		m.waitForEnter()
		return
	}

	fmt.Println()
	if len(devices) == 0 {
		fmt.Println(colorDim + " No keyboard devices found." + colorReset)
	}
	for _, dev := range devices {
		fmt.Println(" " + dev)
	}
	fmt.Println()
	m.waitForEnter()
}

// runWatch streams blocked-press events until Enter is pressed.
func (m *Menu) runWatch() {
	if !m.requireDaemon() {
		return
	}

	if err := m.client.Subscribe(ipc.EventKeyBlocked); err != nil {
		m.printError(err.Error())
		m.waitForEnter()
		return
	}

	fmt.Println()
	fmt.Println(" Watching for blocked presses. Press Enter to stop.")
	fmt.Println()

	done := make(chan struct{})
	go func() {
		m.reader.ReadString('\n')
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-m.client.Events():
			if !ok {
				m.printError("Connection to daemon lost.")
				m.waitForEnter()
				return
			}
			if ev.Type != ipc.EventKeyBlocked {
				continue
			}
			var blocked ipc.KeyBlockedEvent
			if raw, err := ipc.Encode(ev.Data); err == nil {
				ipc.Decode(raw, &blocked)
			}
			fmt.Printf(" %s  %s%-12s%s delta=%dms (blocked %d times)\n",
				ev.Timestamp.Format("15:04:05"),
				colorRed, blocked.KeyName, colorReset,
				blocked.DeltaMs, blocked.BlockedSeen)
		}
	}
}

func (m *Menu) runResetStats() {
	if !m.requireDaemon() {
		return
	}

	confirm := m.prompt("Really clear all statistics? (y/n)")
	if strings.ToLower(confirm) != "y" {
		return
	}

	if err := m.client.ResetStats(); err != nil {
		m.printError(err.Error())
	} else {
		m.printSuccess("Statistics cleared.")
	}
	m.waitForEnter()
}

func (m *Menu) showHelp() {
	m.clearScreen()
	fmt.Println(colorBold + " HELP" + colorReset)
	fmt.Println()
	fmt.Println(` Keyboard chatter is a failing switch registering one press as
 several. chatterd times every press and drops repeats that arrive
 faster than a human can type.

 Policies:
   adaptive   Per-key thresholds that tighten after a fresh press and
              relax once the key is held (the default).
   pattern    Flags presses whose timing breaks the key's own rhythm.

 The daemon runs in the background; this menu talks to it over its
 control socket. Statistics persist across restarts. Pausing lets
 every event through, useful for games or key tests.`)
	fmt.Println()
	m.waitForEnter()
}

func (m *Menu) prompt(label string) string {
	fmt.Print(colorCyan + " " + label + ": " + colorReset)
	input, _ := m.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (m *Menu) waitForEnter() {
	fmt.Print(colorDim + " Press Enter to continue..." + colorReset)
	m.reader.ReadString('\n')
}

func (m *Menu) printError(message string) {
	fmt.Println()
	fmt.Println(colorRed + " ✗ " + message + colorReset)
	fmt.Println()
}

func (m *Menu) printSuccess(message string) {
	fmt.Println(colorGreen + " ✓ " + message + colorReset)
}

func (m *Menu) printGoodbye() {
	if m.client != nil {
		m.client.Close()
	}
	fmt.Println()
	fmt.Println(colorGreen + " Goodbye!" + colorReset)
	fmt.Println()
}

func (m *Menu) checkmark(ok bool) string {
	if ok {
		return colorGreen + "✓" + colorReset
	}
	return colorRed + "✗" + colorReset
}

func (m *Menu) warning() string {
	return colorYellow + "⚠" + colorReset
}
