package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/finsight/internal/client"
	"github.com/bryanwahyu/finsight/internal/logger"
)

var (
	flagServer  string
	flagTimeout time.Duration
	flagExplain bool
)

func main() {
	logger.Init(logger.FromEnv())

	rootCmd.Flags().StringVar(&flagServer, "server", envOr("FINSIGHT_SERVER", "http://localhost:5000"), "base URL of the analysis server")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 2*time.Minute, "give up after this long")
	rootCmd.Flags().BoolVar(&flagExplain, "explain", false, "also print an explanation of the result")

	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		log := logger.Named("upload")
		if errors.Is(err, client.ErrUpload) {
			log.Error().Err(err).Msg("There was an error!")
			fmt.Fprintln(os.Stderr, "There was an error!")
		} else {
			log.Error().Err(err).Msg("upload failed")
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "upload <file.json>",
	Short:        "Upload a JSON file for financial analysis and print the result",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         doUpload,
}

func doUpload(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	u := client.New(flagServer, nil)
	res, err := u.UploadFile(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Results")
	if err := client.Render(out, res); err != nil {
		return err
	}

	if !flagExplain {
		return nil
	}
	exp, err := u.Explain(ctx, res)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Explanation")
	return client.Render(out, exp)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
