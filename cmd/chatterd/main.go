// chatterd - Keyboard chatter filter daemon
//
// chatterd watches keyboard input for switch chatter (a single keypress
// registering multiple times) and suppresses the spurious repeats:
//
//	chatterd run            Run the daemon in the foreground
//	chatterd start          Start the daemon in the background
//	chatterd stop           Stop a running daemon
//	chatterd status         Show daemon status
//	chatterd devices        List keyboard devices
//	chatterd menu           Interactive menu
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"time"

	"chatterd/internal/config"
	"chatterd/internal/ipc"
	"chatterd/internal/singleinstance"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun()
	case "start":
		cmdStart()
	case "stop":
		cmdStop()
	case "status":
		cmdStatus()
	case "devices":
		cmdDevices()
	case "menu":
		cmdMenu()
	case "version", "-v", "--version":
		fmt.Printf("chatterd %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`chatterd - Keyboard Chatter Filter

USAGE:
    chatterd <command> [options]

COMMANDS:
    run                 Run the daemon in the foreground
    start               Start the daemon in the background
    stop                Stop a running daemon
    status              Show daemon status
    devices             List keyboard devices the daemon would capture
    menu                Interactive menu
    version             Print version
    help                Show this help message

WHAT IT DOES:
    A worn keyboard switch can register one press as several. chatterd
    sits between the keyboard and the system, times every press, and
    drops the repeats that arrive too fast to be human.

NOTES:
    Capturing keyboards on Linux needs read access to /dev/input and
    write access to /dev/uinput (usually the 'input' group or root).
    chatterd never logs which keys you type, only their timing.`)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file path")
	fs.Parse(os.Args[2:])

	if err := runDaemon(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "chatterd: %v\n", err)
		os.Exit(1)
	}
}

// cmdStart re-executes "chatterd run" detached from the terminal.
func cmdStart() {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file path")
	fs.Parse(os.Args[2:])

	if pid := singleinstance.RunningPID(lockPath()); pid != 0 {
		fmt.Printf("chatterd already running (pid %d)\n", pid)
		return
	}

	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatterd: %v\n", err)
		os.Exit(1)
	}

	args := []string{"run"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}

	proc := exec.Command(exe, args...)
	proc.SysProcAttr = getDaemonSysProcAttr()
	proc.Stdout = nil
	proc.Stderr = nil
	if err := proc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "chatterd: start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("chatterd started (pid %d)\n", proc.Process.Pid)
}

func cmdStop() {
	client, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatterd: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "chatterd: shutdown: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("chatterd stopped")
}

func cmdStatus() {
	client, err := connect()
	if err != nil {
		fmt.Println("chatterd is not running")
		return
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatterd: status: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== chatterd Status ===")
	fmt.Println()
	fmt.Printf("Version:  %s\n", status.Version)
	fmt.Printf("Uptime:   %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("Policy:   %s\n", status.Policy)
	state := "capturing"
	if !status.Capturing {
		state = "stopped"
	} else if status.Paused {
		state = "paused"
	}
	fmt.Printf("State:    %s\n", state)
	fmt.Printf("Events:   %d\n", status.EventsTotal)
	fmt.Printf("Blocked:  %d\n", status.BlockedTotal)
	for _, dev := range status.Devices {
		fmt.Printf("Device:   %s\n", dev)
	}
}

func cmdDevices() {
	// Ask a running daemon first; it sees the grabbed devices. Fall
	// back to local enumeration.
	if client, err := connect(); err == nil {
		defer client.Close()
		if devices, err := client.ListDevices(); err == nil {
			printDevices(devices)
			return
		}
	}

	devices, err := listLocalDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatterd: %v\n", err)
		os.Exit(1)
	}
	printDevices(devices)
}

func printDevices(devices []string) {
	if len(devices) == 0 {
		fmt.Println("No keyboard devices found.")
		return
	}
	for _, dev := range devices {
		fmt.Println(dev)
	}
}

func cmdMenu() {
	NewMenu().Run()
}

// connect dials a running daemon using the configured socket.
func connect() (*ipc.Client, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		cfg = config.DefaultConfig()
	}

	clientCfg := ipc.DefaultClientConfig(cfg.IPC.SocketPath)
	clientCfg.ClientName = "chatterd"
	clientCfg.ClientVersion = version
	if cfg.IPC.ListenAddr != "" {
		clientCfg.ListenAddr = cfg.IPC.ListenAddr
	}

	client := ipc.NewClient(clientCfg)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}
