package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Face-recognition gate with an async visitor approval workflow",
	Long: `Gatekeeper grants or denies physical access by matching camera frames
against enrolled face encodings. Recognized people are logged in the
attendance ledger; unknown visitors go through a conversational approval
flow that asks the responsible party over WhatsApp before opening the gate.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
