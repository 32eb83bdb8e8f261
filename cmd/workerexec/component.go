package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oriys/workerexec/internal/codeloader"
	"github.com/oriys/workerexec/internal/config"
	"github.com/oriys/workerexec/internal/domain"
)

func componentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "component",
		Short: "Manage components registered with an executor's local store",
	}
	cmd.AddCommand(componentRegisterCmd())
	return cmd
}

func componentRegisterCmd() *cobra.Command {
	var memoryPagesInitial uint32
	cmd := &cobra.Command{
		Use:   "register <component-id> <version> <path-to-wasm>",
		Short: "Register a component binary under the executor's ComponentRoot",
		Long:  "Writes a component.wasm and metadata.json sidecar under cfg.Worker.ComponentRoot, the same layout FSSource.Get resolves at worker creation time.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			id, err := uuid.Parse(cliArgs[0])
			if err != nil {
				return fmt.Errorf("invalid component-id: %w", err)
			}
			version, err := strconv.ParseUint(cliArgs[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			code, err := os.ReadFile(cliArgs[2])
			if err != nil {
				return fmt.Errorf("read component binary: %w", err)
			}

			cfg := config.DefaultConfig()
			if configFile != "" {
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}

			source, err := codeloader.NewFSSource(cfg.Worker.ComponentRoot)
			if err != nil {
				return fmt.Errorf("open component source: %w", err)
			}

			meta := domain.ComponentMetadata{
				ComponentID:        id,
				Version:            version,
				SizeBytes:          uint64(len(code)),
				MemoryPagesInitial: memoryPagesInitial,
			}
			if err := source.Register(id, version, code, meta); err != nil {
				return fmt.Errorf("register component: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COMPONENT\tVERSION\tSIZE\tHASH")
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", id, version, formatBytes(meta.SizeBytes), truncate(codeloader.ContentHash(code), 16))
			return w.Flush()
		},
	}
	cmd.Flags().Uint32Var(&memoryPagesInitial, "memory-pages-initial", 0, "Initial linear memory page count recorded in metadata")
	return cmd
}
