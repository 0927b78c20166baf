package main

import (
	"fmt"
	"runtime"

	"github.com/hyperengineering/vocab/internal/rules"
	"github.com/spf13/cobra"
)

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type versionInfo struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	Date         string `json:"date"`
	RulesVersion string `json:"rules_version"`
	Go           string `json:"go"`
	Platform     string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the build version, commit, built-in rule table version and Go runtime.`,
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := versionInfo{
		Version:      version,
		Commit:       commit,
		Date:         date,
		RulesVersion: rules.DefaultVersion,
		Go:           runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}
	if outputJSON {
		return outputAsJSON(cmd, info)
	}

	out := cmd.OutOrStdout()
	if isTTY() {
		fmt.Fprintln(out, renderBanner(info.Version))
	} else {
		fmt.Fprintf(out, "vocab %s\n", info.Version)
	}
	printField(out, "commit", info.Commit)
	printField(out, "built", info.Date)
	printField(out, "rules", info.RulesVersion)
	printField(out, "go", info.Go)
	printField(out, "os", info.Platform)
	return nil
}
