// Backtest CLI
// Runs multi-timeframe strategies over historical bars and searches their
// parameter spaces.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usage = `Usage: backtest <mode> [flags]

Modes:
  run         backtest every strategy on every configured asset
  grid        exhaustive search over a search file
  random      random sampling of a search file
  sequential  grid search followed by refinement per secondary metric
  montecarlo  randomized parameters and optional price noise
  import      copy CSV or Parquet bars into the candlesticks table

Run "backtest <mode> -h" for the flags of a mode.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	mode, args := os.Args[1], os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, mode, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "backtest %s: %v\n", mode, err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, mode string, args []string) error {
	switch mode {
	case "run":
		return runMode(ctx, args)
	case modeGrid, modeRandom, modeSequential, modeMonteCarlo:
		return searchMode(ctx, mode, args)
	case "import":
		return importMode(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown mode %q", mode)
	}
}
