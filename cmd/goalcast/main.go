package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts globalOptions
	rootCmd := &cobra.Command{
		Use:           "goalcast",
		Short:         "Train and serve over/under goal classifiers per competition",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		newPreprocessCmd(&opts),
		newTrainCmd(&opts),
		newPredictCmd(&opts),
		newArtifactsCmd(&opts),
		newServeCmd(&opts),
		newMigrateCmd(&opts),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
