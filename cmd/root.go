package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "phonebook",
	Short: "Contacts microservice",
	Long:  `A contacts microservice providing user signup, email confirmation, JWT authentication and a private phonebook via HTTP, plus identity resolution for sibling services via gRPC.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
