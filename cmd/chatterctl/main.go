// chatterctl is the control CLI for chatterd.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"chatterd/internal/config"
	"chatterd/internal/ipc"
)

// Version of the control CLI. Kept in step with the daemon.
const Version = "1.0.0"

var (
	socketPath = flag.String("socket", "", "path to the daemon control socket")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "status":
		cmdStatus()
	case "stats":
		sinceMs := int64(0)
		if flag.NArg() >= 2 {
			n, err := strconv.ParseInt(flag.Arg(1), 10, 64)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Usage: chatterctl stats [since-unix-ms]")
				os.Exit(1)
			}
			sinceMs = n
		}
		cmdStats(sinceMs)
	case "top":
		limit := 10
		if flag.NArg() >= 2 {
			n, err := strconv.Atoi(flag.Arg(1))
			if err != nil || n <= 0 {
				fmt.Fprintln(os.Stderr, "Usage: chatterctl top [n]")
				os.Exit(1)
			}
			limit = n
		}
		cmdTop(limit)
	case "reset-stats":
		cmdResetStats()
	case "config":
		cmdConfig()
	case "reload":
		cmdReload()
	case "set-policy":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: chatterctl set-policy <adaptive|pattern>")
			os.Exit(1)
		}
		cmdSetPolicy(flag.Arg(1))
	case "pause":
		cmdPauseResume(true)
	case "resume":
		cmdPauseResume(false)
	case "devices":
		cmdDevices()
	case "watch":
		cmdWatch()
	case "ping":
		cmdPing()
	case "stop":
		cmdStop()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `chatterctl - Control utility for chatterd

Usage: chatterctl [options] <command> [args]

Commands:
  status              Show daemon status
  stats [since-ms]    Per-key blocked statistics (optionally since a Unix-ms timestamp)
  top [n]             Keys with the most blocked presses (default 10)
  reset-stats         Clear all recorded statistics
  config              Print the daemon's running configuration
  reload              Re-read the configuration file
  set-policy <name>   Switch decision policy (adaptive or pattern)
  pause               Suspend filtering (all events pass)
  resume              Resume filtering
  devices             List keyboard devices the daemon captures
  watch               Stream blocked presses as they happen
  ping                Check daemon liveness
  stop                Stop the daemon
  help                Show this help message

Options:
  -socket <path>      Control socket path (default from configuration)`)
}

// connect dials the daemon, resolving the socket from flags or config.
func connect() *ipc.Client {
	path := *socketPath
	listenAddr := ""
	if path == "" {
		if cfg, err := config.Load(config.ConfigPath()); err == nil {
			path = cfg.IPC.SocketPath
			listenAddr = cfg.IPC.ListenAddr
		} else {
			path = config.DefaultConfig().IPC.SocketPath
		}
	}

	clientCfg := ipc.DefaultClientConfig(path)
	clientCfg.ClientName = "chatterctl"
	clientCfg.ClientVersion = Version
	if listenAddr != "" {
		clientCfg.ListenAddr = listenAddr
	}

	client := ipc.NewClient(clientCfg)
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot connect to daemon: %v\n", err)
		fmt.Fprintln(os.Stderr, "Tip: start it with: chatterd start")
		os.Exit(1)
	}
	return client
}
