package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	serverAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "workerexec",
		Short: "workerexec - durable WebAssembly worker executor",
		Long:  "A distributed executor for durable WebAssembly workers: lifecycle, routing, and oplog-backed replay.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, flags override)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:7190", "Executor gRPC address for CLI subcommands")

	rootCmd.AddCommand(
		daemonCmd(),
		createWorkerCmd(),
		deleteWorkerCmd(),
		invokeCmd(),
		interruptCmd(),
		resumeCmd(),
		updateWorkerCmd(),
		getMetadataCmd(),
		listWorkersCmd(),
		completePromiseCmd(),
		componentCmd(),
		shardCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the workerexec version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("workerexec dev")
			return nil
		},
	}
}
