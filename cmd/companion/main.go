package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	assistantID string
	personaPath string
)

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Virtual AI companion: multi-room navigation and the brain council",
	Long: `companion runs a virtual assistant that lives on a floor plan. It walks between
rooms through doorways, manipulates furniture and answers chat messages through a
council of reasoners, optionally backed by a language model.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "companion.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&assistantID, "assistant", "a", "deskmate", "Assistant id")
	rootCmd.PersistentFlags().StringVar(&personaPath, "persona", "", "Optional persona YAML file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
