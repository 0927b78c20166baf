package main

import (
	vocabmcp "github.com/hyperengineering/vocab/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

Configuration for an MCP client:

  {
    "mcpServers": {
      "vocab": {
        "command": "vocab",
        "args": ["mcp"],
        "env": {
          "VOCAB_DB_PATH": "/path/to/vocab.db"
        }
      }
    }
  }

Environment variables:
  VOCAB_DB_PATH     Path to the SQLite database
  VOCAB_STORE       Store ID used when VOCAB_DB_PATH is unset
  VOCAB_RULES_PATH  YAML rule table replacing the built-in patterns
  VOCAB_LOG_LEVEL   Log level; logs go to stderr`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	svc, err := openService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	return vocabmcp.NewServer(svc, version).Run()
}
