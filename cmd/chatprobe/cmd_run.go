package main

import (
	"context"

	"github.com/spf13/cobra"

	"chatprobe/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ask the configured question from parallel sessions until interrupted",
	Long: `Starts --parallelism workers, each in its own tab of one shared browser.
Every worker sends the question, streams the answer to the terminal, waits
for the answer to settle and asks again. The run stops on Ctrl+C or when any
worker hits an error, and then writes:

  chat_network_<stamp>.har   HTTP archive of the whole session
  chat_ws_<stamp>.log        WebSocket event log
  chat_ws_har_<stamp>.json   WebSocket connections and frames
  chat_ledger_<stamp>.db     SQLite record of every exchange`,
	Annotations: map[string]string{modeAnnotation: string(config.ModeRun)},
	RunE:        runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	return newApp(cfg, console, logger, started).Run(context.Background())
}
