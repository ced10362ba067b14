// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/bookwish/internal/config"
	"github.com/autobrr/bookwish/internal/database"
	"github.com/autobrr/bookwish/internal/services/prowlarr"
	"github.com/autobrr/bookwish/internal/services/ranking"
	"github.com/autobrr/bookwish/internal/services/sources"
)

// openStack loads config and the database for one-shot commands. The returned func releases both.
func openStack(configDir, dataDir string) (*stack, func(), error) {
	cfg, err := config.New(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s, err := newStack(cfg, db, nil)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		s.service.Close()
		s.cache.Close()
		db.Close()
	}

	return s, cleanup, nil
}

func RunSourcesCommand() *cobra.Command {
	var (
		configDir    string
		dataDir      string
		force        bool
		autoDownload bool
		output       string
	)

	command := &cobra.Command{
		Use:   "sources <asin>",
		Short: "Query, rank and optionally download sources for a requested book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "json" && output != "yaml" {
				return fmt.Errorf("unsupported output %q (text, json, yaml)", output)
			}

			s, cleanup, err := openStack(configDir, dataDir)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			asin := strings.TrimSpace(args[0])
			result, err := s.service.QuerySources(ctx, asin, sources.QueryOptions{
				ForceRefresh:      force,
				StartAutoDownload: autoDownload,
			})
			switch {
			case errors.Is(err, prowlarr.ErrMisconfigured):
				return fmt.Errorf("%w (run `bookwish set-prowlarr` first)", err)
			case err != nil:
				return err
			}

			return writeResult(cmd.OutOrStdout(), output, result)
		},
	}

	addConfigDirFlag(command, &configDir)
	addDataDirFlag(command, &dataDir)
	command.Flags().BoolVar(&force, "force", false, "bypass the source cache")
	command.Flags().BoolVar(&autoDownload, "auto-download", false, "send the best source to Prowlarr if the book is not downloaded yet")
	command.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")

	return command
}

func writeResult(w io.Writer, format string, result *sources.QueryResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		// Round trip through JSON so the keys match the API.
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	}

	fmt.Fprintf(w, "%s - %s (downloaded: %t)\n", result.Book.ASIN, result.Book.Title, result.Book.Downloaded)
	if len(result.Sources) == 0 {
		fmt.Fprintln(w, "no sources found")
	}
	for i, source := range result.Sources {
		fmt.Fprintf(w, "%3d. %s [%s]\n", i+1, source.Title, ranking.Describe(source))
	}
	if result.Started != nil {
		fmt.Fprintf(w, "download started: %s (%s)\n", result.Started.Title, result.Started.Indexer)
	}
	return nil
}

func RunSetProwlarrCommand() *cobra.Command {
	var (
		configDir  string
		dataDir    string
		baseURL    string
		ttl        time.Duration
		categories []int
		readKey    bool
	)

	command := &cobra.Command{
		Use:   "set-prowlarr",
		Short: "Configure the Prowlarr connection",
		Long: `Configure the Prowlarr connection stored in the database.

The API key is read from the terminal (or stdin when piped) with --api-key,
so it never shows up in shell history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openStack(configDir, dataDir)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()

			if cmd.Flags().Changed("base-url") {
				if err := s.prowlarr.SetBaseURL(ctx, baseURL); err != nil {
					return fmt.Errorf("failed to save base url: %w", err)
				}
			}

			if readKey {
				apiKey, err := readSecret("Enter Prowlarr API key: ")
				if err != nil {
					return err
				}
				if err := s.prowlarr.SetAPIKey(ctx, apiKey); err != nil {
					return fmt.Errorf("failed to save api key: %w", err)
				}
			}

			if cmd.Flags().Changed("ttl") {
				if err := s.prowlarr.SetSourceTTL(ctx, ttl); err != nil {
					return err
				}
			}

			if cmd.Flags().Changed("categories") {
				if err := s.prowlarr.SetCategories(ctx, categories); err != nil {
					return fmt.Errorf("failed to save categories: %w", err)
				}
			}

			current, err := s.prowlarr.Load(ctx)
			if err != nil {
				return err
			}

			redacted := current.Redacted()
			cmd.Printf("base url:   %s\n", redacted.BaseURL)
			cmd.Printf("api key:    %s\n", redacted.APIKey)
			cmd.Printf("source ttl: %s\n", current.SourceTTL)
			cmd.Printf("categories: %v\n", redacted.Categories)
			if !current.Valid() {
				cmd.Println("Prowlarr is not fully configured yet.")
			}
			return nil
		},
	}

	addConfigDirFlag(command, &configDir)
	addDataDirFlag(command, &dataDir)
	command.Flags().StringVar(&baseURL, "base-url", "", "Prowlarr base URL, e.g. http://localhost:9696")
	command.Flags().BoolVar(&readKey, "api-key", false, "prompt for the Prowlarr API key")
	command.Flags().DurationVar(&ttl, "ttl", prowlarr.DefaultSourceTTL, "how long search results stay fresh")
	command.Flags().IntSliceVar(&categories, "categories", prowlarr.DefaultCategories(), "Prowlarr categories to search")

	return command
}

func readSecret(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print(prompt)
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
