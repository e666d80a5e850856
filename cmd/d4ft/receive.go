package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dacid44/d4ft4/internal/handshake"
	"github.com/dacid44/d4ft4/internal/message"
	"github.com/dacid44/d4ft4/internal/transfer"
)

type receiveFlags struct {
	address string
	outDir  string
	allow   []string
}

func receiveCmd(global *globalFlags) *cobra.Command {
	flags := &receiveFlags{}

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Listen for an incoming text or file transfer",
		Args:  cobra.NoArgs,
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

			address := flags.address
			if address == "" {
				address = cfg.Transfer.Address
			}

			receiver, err := handshake.InitReceive(cmd.Context(), true, address, password, log)
			if err != nil {
				return exitWithError(cmd, err)
			}
			defer receiver.Close()

			it, err := receiver.ReceiveInit()
			if err != nil {
				return exitWithError(cmd, err)
			}

			switch {
			case it.IsText():
				text, err := receiver.AcceptText(it)
				if err != nil {
					return exitWithError(cmd, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", completionBanner(fmt.Sprintf("received %s of text", humanize.Bytes(uint64(len(text))))))
			case it.IsFiles():
				if err := receiveFiles(cmd, receiver, it.Files, flags); err != nil {
					return exitWithError(cmd, err)
				}
			default:
				return exitWithError(cmd, fmt.Errorf("peer sent an unrecognized transfer mode %q", it.Mode))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&flags.address, "listen", "", "address to listen on, host:port (overrides the configured transfer address)")
	cmd.Flags().StringVar(&flags.outDir, "out-dir", ".", "directory to write received files into")
	cmd.Flags().StringArrayVar(&flags.allow, "allow", nil, "glob pattern matching files to accept (repeatable; default accepts every offered file)")

	return cmd
}

func receiveFiles(cmd *cobra.Command, receiver *transfer.Receiver, files []message.FileListItem, flags *receiveFlags) error {
	allowlist, err := filterAllowlist(files, flags.allow)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "accepting %s into %s\n", pluralFiles(len(allowlist)), flags.outDir)

	if err := receiver.ReceiveFlatFilesFS(allowlist, flags.outDir); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", completionBanner(fmt.Sprintf("received %s", pluralFiles(len(allowlist)))))
	return nil
}

// filterAllowlist reduces files to the basenames matching one of the
// configured --allow globs, or every file's basename when no --allow
// flag was given.
func filterAllowlist(files []message.FileListItem, patterns []string) ([]string, error) {
	allowlist := make([]string, 0, len(files))
	for _, item := range files {
		if !item.IsFile() {
			continue
		}
		basename := filepath.Base(item.Path)

		if len(patterns) == 0 {
			allowlist = append(allowlist, basename)
			continue
		}
		for _, pattern := range patterns {
			matched, err := filepath.Match(pattern, basename)
			if err != nil {
				return nil, fmt.Errorf("invalid --allow pattern %q: %w", pattern, err)
			}
			if matched {
				allowlist = append(allowlist, basename)
				break
			}
		}
	}
	return allowlist, nil
}
