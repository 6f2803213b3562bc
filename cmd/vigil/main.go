package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
	"github.com/Hussein-Mazeh/Vigil/internal/config"
	"github.com/Hussein-Mazeh/Vigil/internal/hostname"
	"github.com/Hussein-Mazeh/Vigil/internal/inspect"
	"github.com/Hussein-Mazeh/Vigil/internal/logging"
	"github.com/Hussein-Mazeh/Vigil/internal/service"
	"github.com/Hussein-Mazeh/Vigil/native-host/domaincheck"
	"github.com/Hussein-Mazeh/Vigil/store"
)

const cliVersion = "0.1.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

var (
	configPath string
	jsonOutput bool
)

func main() {
	handleError(rootCmd.Execute())
}

func handleError(err error) {
	if err == nil {
		return
	}
	code := exitCode(err)
	if code == 1 {
		fmt.Fprintln(os.Stderr, err.Error())
	} else {
		fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	}
	os.Exit(code)
}

// exitCode maps user mistakes to 1 and everything else to 2.
func exitCode(err error) int {
	var uerr userError
	if errors.As(err, &uerr) || errors.Is(err, service.ErrInvalidURL) {
		return 1
	}
	return 2
}

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Score web pages for phishing risk",
	Long: `vigil - phishing risk scoring for the pages you visit.

Scores a URL from its hostname entropy, phishing keywords, resemblance to
well-known domains, HTTPS use and the scripts it loads. The same engine
backs the browser extension's native host.

Quick start:
  vigil scan https://example.com/   # Score a page
  vigil last                        # Show the most recent scan
  vigil similar paypa1.com          # Find lookalike reference domains`,
	Version:       cliVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")

	scanCmd.Flags().Int64("tab", 0, "tab id the scan is stored under")
	scanCmd.Flags().Int("scripts", -1, "script count to use instead of inspecting the page")
	scanCmd.Flags().Int("trackers", -1, "tracker estimate to use instead of inspecting the page")
	scanCmd.Flags().String("mode", "", "inspector mode: reported, http or browser")
	lastCmd.Flags().String("url", "", "only accept a record produced for this URL")
	lastCmd.Flags().Int64("tab", -1, "read the record stored for this tab")
	similarCmd.Flags().Int("threshold", 0, "maximum edit distance (default from config)")

	domainsCmd.AddCommand(domainsExportCmd)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(lastCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(lookalikeCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(domainsCmd)
	rootCmd.AddCommand(versionCmd)
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return userError{msg: "usage: " + usage}
		}
		return nil
	}
}

// loadConfig reads the config file named by --config and builds a stderr logger.
func loadConfig() (*config.Config, *logrus.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, userError{msg: err.Error()}
	}
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, nil, nil, userError{msg: err.Error()}
	}
	return cfg, logger, closer, nil
}

// scan command - score one URL
var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Score a URL and store the result",
	Args:  exactArgs(1, "vigil scan <url>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
			cfg.Inspector.Mode = mode
			if err := cfg.Validate(); err != nil {
				return userError{msg: err.Error()}
			}
		}

		svc, err := service.NewFromConfig(cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		tab, _ := cmd.Flags().GetInt64("tab")
		page := inspect.Page{TabID: tab, URL: args[0]}
		scripts, _ := cmd.Flags().GetInt("scripts")
		trackers, _ := cmd.Flags().GetInt("trackers")
		if scripts >= 0 || trackers >= 0 {
			page.Reported = &inspect.ScriptStats{ScriptCount: max(0, scripts), TrackerEstimate: max(0, trackers)}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		rec, err := svc.Analyze(ctx, page)
		if err != nil {
			return err
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

// last command - show the stored record
var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "Show the most recent scan",
	Args:  exactArgs(0, "vigil last [--url URL | --tab ID]"),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		svc, err := service.NewFromConfig(cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		currentURL, _ := cmd.Flags().GetString("url")
		tab, _ := cmd.Flags().GetInt64("tab")

		var rec *analyzer.ScanRecord
		if tab >= 0 {
			rec, err = svc.TabScan(tab)
		} else {
			rec, err = svc.LastScan(currentURL)
		}
		switch {
		case errors.Is(err, service.ErrNoRecord):
			return userError{msg: "no scan recorded yet; run vigil scan first"}
		case errors.Is(err, service.ErrStaleRecord):
			return userError{msg: "the last scan was for a different page"}
		case err != nil:
			return err
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

// similar command - run the domain matcher alone
var similarCmd = &cobra.Command{
	Use:   "similar <hostname>",
	Short: "List reference domains close to a hostname",
	Args:  exactArgs(1, "vigil similar <hostname>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		threshold, _ := cmd.Flags().GetInt("threshold")
		if threshold <= 0 {
			threshold = cfg.SimilarityThreshold
		}

		known := store.DomainSource{Location: cfg.KnownDomains, Logger: logger}.LoadKnownDomains(cmd.Context())
		hits := analyzer.FindSimilarDomains(hostname.Normalize(args[0]), known, threshold)
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), hits)
		}
		printHits(cmd.OutOrStdout(), hits)
		return nil
	},
}

// lookalike command - homograph verdict for a URL
var lookalikeCmd = &cobra.Command{
	Use:   "lookalike <url>",
	Short: "Check a URL for punycode, mixed scripts and confusable characters",
	Args:  exactArgs(1, "vigil lookalike <url>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		known := store.DomainSource{Location: cfg.KnownDomains, Logger: logger}.LoadKnownDomains(cmd.Context())
		verdict := domaincheck.CheckLookalike(args[0], known)
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), verdict)
		}
		printVerdict(cmd.OutOrStdout(), verdict)
		return nil
	},
}

// patterns command - list phishing keyword patterns
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the phishing keyword patterns",
	Args:  exactArgs(0, "vigil patterns"),
	RunE: func(cmd *cobra.Command, args []string) error {
		patterns := analyzer.SuspiciousPatterns()
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), patterns)
		}
		for i, p := range patterns {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s\n", i+1, p)
		}
		return nil
	},
}

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Manage the known-domain reference list",
}

// domains export - write the active list to a file
var domainsExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write the active known-domain list to a file",
	Args:  exactArgs(1, "vigil domains export <path>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := loadConfig()
		if err != nil {
			return err
		}
		defer closer.Close()

		known := store.DomainSource{Location: cfg.KnownDomains, Logger: logger}.LoadKnownDomains(cmd.Context())
		if known.Len() == 0 {
			return userError{msg: "known-domain list is empty or unreadable"}
		}
		if err := store.SaveKnownDomains(args[0], known); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d domains in %d groups to %s\n", known.Len(), len(known.Groups), args[0])
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  exactArgs(0, "vigil version"),
	Run: func(cmd *cobra.Command, args []string) {
		if isTerminal(os.Stdout) {
			printBanner(cmd.OutOrStdout())
		}
		fmt.Fprintln(cmd.OutOrStdout(), cliVersion)
	},
}

func printRecord(w io.Writer, rec *analyzer.ScanRecord) error {
	if jsonOutput {
		return writeJSON(w, rec)
	}
	renderRecord(w, rec)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
