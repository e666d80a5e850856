package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dacid44/d4ft4/internal/d4ferr"
	"github.com/dacid44/d4ft4/internal/handshake"
	"github.com/dacid44/d4ft4/internal/transfer"
)

type sendFlags struct {
	address   string
	rateLimit string
}

func sendCmd(global *globalFlags) *cobra.Command {
	flags := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send text or files to a waiting receiver",
	}
	cmd.PersistentFlags().StringVar(&flags.address, "to", "", "address of the listening receiver, host:port")
	cmd.PersistentFlags().StringVar(&flags.rateLimit, "rate-limit", "", "cap file throughput, e.g. 2MB (empty disables the cap)")
	_ = cmd.MarkPersistentFlagRequired("to")

	cmd.AddCommand(sendTextCmd(global, flags))
	cmd.AddCommand(sendFilesCmd(global, flags))
	return cmd
}

func sendTextCmd(global *globalFlags, flags *sendFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "text <message>",
		Short: "Send a short text payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return exitWithError(cmd, err)
			}
			log := newLogger(cfg)
			serveMetricsIfEnabled(cfg, log)

			password, err := resolvePassword(global)
			if err != nil {
				return exitWithError(cmd, err)
			}

			sender, err := handshake.InitSend(cmd.Context(), false, flags.address, password, log)
			if err != nil {
				return exitWithError(cmd, err)
			}
			defer sender.Close()

			if err := sender.SendText(args[0]); err != nil {
				return exitWithError(cmd, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", completionBanner(fmt.Sprintf("sent %s of text", humanize.Bytes(uint64(len(args[0]))))))
			return nil
		},
	}
}

func sendFilesCmd(global *globalFlags, flags *sendFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "files <path>...",
		Short: "Offer one or more files to a waiting receiver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return exitWithError(cmd, err)
			}
			log := newLogger(cfg)
			serveMetricsIfEnabled(cfg, log)

			password, err := resolvePassword(global)
			if err != nil {
				return exitWithError(cmd, err)
			}

			rateLimit := cfg.RateLimit.BytesPerSecond
			if flags.rateLimit != "" {
				n, err := humanize.ParseBytes(flags.rateLimit)
				if err != nil {
					return exitWithError(cmd, fmt.Errorf("invalid --rate-limit %q: %w", flags.rateLimit, err))
				}
				rateLimit = int64(n)
			}

			sources, closeAll, err := openFileSources(args)
			if err != nil {
				return exitWithError(cmd, err)
			}
			defer closeAll()

			sender, err := handshake.InitSend(cmd.Context(), false, flags.address, password, log)
			if err != nil {
				return exitWithError(cmd, err)
			}
			defer sender.Close()

			sender.SetRateLimit(rateLimit)
			if err := sender.SendFlatFiles(sources); err != nil {
				return exitWithError(cmd, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", completionBanner(fmt.Sprintf("offered %s", pluralFiles(len(sources)))))
			return nil
		},
	}
}

func openFileSources(paths []string) ([]transfer.FileSource, func(), error) {
	sources := make([]transfer.FileSource, 0, len(paths))
	files := make([]*os.File, 0, len(paths))

	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, func() {}, d4ferr.Wrap(d4ferr.KindFileOpen, err)
		}
		files = append(files, f)
		sources = append(sources, transfer.FileSource{DisplayPath: p, Reader: f})
	}
	return sources, closeAll, nil
}

func pluralFiles(n int) string {
	if n == 1 {
		return "1 file"
	}
	return strconv.Itoa(n) + " files"
}
