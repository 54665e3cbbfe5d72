package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmmcquay/katago-retro/internal/cache"
	"github.com/dmmcquay/katago-retro/internal/coach"
	"github.com/dmmcquay/katago-retro/internal/katago"
	"github.com/dmmcquay/katago-retro/internal/retro"
)

var scanCmd = &cobra.Command{
	Use:   "scan <game.sgf>",
	Short: "List one player's mistakes in a game",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().String("color", "black", "Player whose mistakes to list: black or white")
}

func runScan(cmd *cobra.Command, args []string) error {
	colorFlag, _ := cmd.Flags().GetString("color")
	color, err := retro.ParsePlayer(colorFlag)
	if err != nil {
		return err
	}

	sgf, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read SGF: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := katago.NewEngine(&cfg.KataGo, logger, cache.NewManager[*katago.AnalysisResult](&cfg.Cache, logger), nil)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() { _ = engine.Stop() }()

	c := coach.New(coach.Options{Engine: engine, Config: &cfg.Retro, Logger: logger})
	defer func() { _ = c.Shutdown(context.Background()) }()

	faults, err := c.Scan(ctx, string(sgf), color)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(faults) == 0 {
		fmt.Fprintf(out, "No mistakes found for %s.\n", color)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MOVE\tCATEGORY\tLOSS\tBETTER")
	for _, f := range faults {
		better := "?"
		if f.Prev.Eval != nil {
			if move, ok := f.Prev.Eval.BestMove(); ok {
				better = move
				if move == "" {
					better = "pass"
				}
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n", f.Node.MoveNumber(), f.Category, 100*f.Loss, better)
	}
	return w.Flush()
}
