package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oriys/workerexec/internal/config"
	"github.com/oriys/workerexec/internal/routing"
)

func shardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Inspect shard assignment",
	}
	cmd.AddCommand(shardTableCmd())
	return cmd
}

func shardTableCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the shard-to-executor assignment a daemon would start with",
		Long:  "Recomputes, from config alone, the same static single-executor assignment daemon.go builds at startup: every shard in cfg.Routing.ShardCount mapped to cfg.Routing.LocalExecutor. There is no RPC for live routing-table introspection, so this is always an offline recomputation, not a query of a running daemon.",
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}

			shards := routing.NewShardManager(cfg.Routing.ShardCount)
			table := routing.NewRoutingTable()
			assignment := make(map[routing.ShardID]string, shards.ShardCount())
			for i := 0; i < shards.ShardCount(); i++ {
				assignment[routing.ShardID(i)] = cfg.Routing.LocalExecutor
			}
			snapshot := table.Swap(assignment)

			format := parseOutputFormat(output)
			if wrote, err := printStructured(cmd.OutOrStdout(), format, snapshot); wrote || err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "# generation %d\n", snapshot.Generation)
			fmt.Fprintln(w, "SHARD\tEXECUTOR")
			for i := 0; i < shards.ShardCount(); i++ {
				fmt.Fprintf(w, "%d\t%s\n", i, snapshot.Shards[routing.ShardID(i)])
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table, json, or yaml")
	return cmd
}
