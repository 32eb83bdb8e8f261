package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/routing"
	"github.com/spf13/cobra"
)

func createWorkerCmd() *cobra.Command {
	var (
		account string
		args    []string
		envKVs  []string
		version uint64
		pinned  bool
	)

	cmd := &cobra.Command{
		Use:   "create <component-id>/<worker-name>",
		Short: "Create a new worker instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			workerID, err := parseWorkerRef(cliArgs[0])
			if err != nil {
				return err
			}
			env, err := parseEnvVars(envKVs)
			if err != nil {
				return err
			}

			client, err := dialExecutor()
			if err != nil {
				return err
			}

			req := &routing.CreateWorkerRequest{
				WorkerId: workerID,
				Args:     args,
				Env:      env,
				Account:  domain.AccountId(account),
			}
			if pinned {
				req.Version = &version
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, gerr := client.CreateWorker(ctx, req)
			if gerr != nil {
				return printGolemError(gerr)
			}
			fmt.Printf("created worker %s\n", workerID)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Owning account id")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "Command-line argument, may be repeated")
	cmd.Flags().StringArrayVar(&envKVs, "env", nil, "Environment variable KEY=VALUE, may be repeated")
	cmd.Flags().Uint64Var(&version, "version", 0, "Pin to a specific component version")
	cmd.Flags().BoolVar(&pinned, "pin-version", false, "Pin --version instead of resolving the latest")
	return cmd
}

func deleteWorkerCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "delete <component-id>/<worker-name>",
		Short: "Delete a worker instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			workerID, err := parseWorkerRef(cliArgs[0])
			if err != nil {
				return err
			}
			client, err := dialExecutor()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, gerr := client.DeleteWorker(ctx, &routing.WorkerRef{WorkerId: workerID, Account: domain.AccountId(account)})
			if gerr != nil {
				return printGolemError(gerr)
			}
			fmt.Printf("deleted worker %s\n", workerID)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "default", "Owning account id")
	return cmd
}

func invokeCmd() *cobra.Command {
	var (
		account          string
		function         string
		paramsB64        string
		await            bool
		callingConvention string
	)

	cmd := &cobra.Command{
		Use:   "invoke <component-id>/<worker-name>",
		Short: "Invoke an exported function on a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			workerID, err := parseWorkerRef(cliArgs[0])
			if err != nil {
				return err
			}
			if function == "" {
				return fmt.Errorf("--function is required")
			}
			var params []byte
			if paramsB64 != "" {
				params, err = base64.StdEncoding.DecodeString(paramsB64)
				if err != nil {
					return fmt.Errorf("decode --params: %w", err)
				}
			}
			cc := domain.CallingConventionComponent
			if callingConvention == "stdio" {
				cc = domain.CallingConventionStdio
			}

			client, err := dialExecutor()
			if err != nil {
				return err
			}

			req := &routing.InvokeRequest{
				WorkerId:          workerID,
				Account:           domain.AccountId(account),
				FunctionName:      function,
				Params:            params,
				InvocationKey:     domain.NewInvocationKey(),
				CallingConvention: cc,
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			if !await {
				_, gerr := client.InvokeWorker(ctx, req)
				if gerr != nil {
					return printGolemError(gerr)
				}
				fmt.Println("invocation enqueued")
				return nil
			}

			resp, gerr := client.InvokeAndAwaitWorker(ctx, req)
			if gerr != nil {
				return printGolemError(gerr)
			}
			fmt.Printf("result (base64): %s\n", base64.StdEncoding.EncodeToString(resp.Result))
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Owning account id")
	cmd.Flags().StringVar(&function, "function", "", "Exported function name")
	cmd.Flags().StringVar(&paramsB64, "params", "", "Base64-encoded parameter payload")
	cmd.Flags().BoolVar(&await, "await", true, "Wait for the result instead of enqueueing")
	cmd.Flags().StringVar(&callingConvention, "calling-convention", "component", "Calling convention: component or stdio")
	return cmd
}

func interruptCmd() *cobra.Command {
	var (
		account            string
		recoverImmediately bool
	)
	cmd := &cobra.Command{
		Use:   "interrupt <component-id>/<worker-name>",
		Short: "Interrupt a running worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			workerID, err := parseWorkerRef(cliArgs[0])
			if err != nil {
				return err
			}
			client, err := dialExecutor()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, gerr := client.InterruptWorker(ctx, &routing.InterruptRequest{
				WorkerId:           workerID,
				Account:            domain.AccountId(account),
				RecoverImmediately: recoverImmediately,
			})
			if gerr != nil {
				return printGolemError(gerr)
			}
			fmt.Printf("interrupted worker %s\n", workerID)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "default", "Owning account id")
	cmd.Flags().BoolVar(&recoverImmediately, "recover-immediately", false, "Resume execution immediately instead of waiting for the next call")
	return cmd
}

func resumeCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "resume <component-id>/<worker-name>",
		Short: "Resume an interrupted or suspended worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			workerID, err := parseWorkerRef(cliArgs[0])
			if err != nil {
				return err
			}
			client, err := dialExecutor()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, gerr := client.ResumeWorker(ctx, &routing.WorkerRef{WorkerId: workerID, Account: domain.AccountId(account)})
			if gerr != nil {
				return printGolemError(gerr)
			}
			fmt.Printf("resumed worker %s\n", workerID)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "default", "Owning account id")
	return cmd
}

func updateWorkerCmd() *cobra.Command {
	var (
		account string
		mode    string
		target  uint64
	)
	cmd := &cobra.Command{
		Use:   "update <component-id>/<worker-name>",
		Short: "Update a worker to a new component version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			workerID, err := parseWorkerRef(cliArgs[0])
			if err != nil {
				return err
			}
			client, err := dialExecutor()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, gerr := client.UpdateWorker(ctx, &routing.UpdateRequest{
				WorkerId:      workerID,
				Account:       domain.AccountId(account),
				Mode:          domain.UpdateMode(mode),
				TargetVersion: target,
			})
			if gerr != nil {
				return printGolemError(gerr)
			}
			fmt.Printf("updated worker %s to version %d (%s)\n", workerID, target, mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "default", "Owning account id")
	cmd.Flags().StringVar(&mode, "mode", string(domain.UpdateModeAutomatic), "Update mode: Automatic or Manual")
	cmd.Flags().Uint64Var(&target, "target-version", 0, "Target component version")
	return cmd
}

func getMetadataCmd() *cobra.Command {
	var (
		account string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "get <component-id>/<worker-name>",
		Short: "Print a worker's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			workerID, err := parseWorkerRef(cliArgs[0])
			if err != nil {
				return err
			}
			client, err := dialExecutor()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			resp, gerr := client.GetWorkerMetadata(ctx, &routing.WorkerRef{WorkerId: workerID, Account: domain.AccountId(account)})
			if gerr != nil {
				return printGolemError(gerr)
			}
			format := parseOutputFormat(output)
			if wrote, err := printStructured(cmd.OutOrStdout(), format, resp.Metadata); wrote || err != nil {
				return err
			}
			printWorkerMetadata(resp.Metadata)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "default", "Owning account id")
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table, json, or yaml")
	return cmd
}

func listWorkersCmd() *cobra.Command {
	var (
		componentID string
		cursor      uint64
		count       int
		running     bool
		output      string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers belonging to a component",
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			if _, err := uuid.Parse(componentID); err != nil {
				return fmt.Errorf("invalid --component: %w", err)
			}
			client, err := dialExecutor()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var workers []domain.WorkerMetadata
			if running {
				resp, gerr := client.GetRunningWorkersMetadata(ctx, &routing.ComponentRef{ComponentID: componentID})
				if gerr != nil {
					return printGolemError(gerr)
				}
				workers = resp.Workers
			} else {
				resp, gerr := client.GetWorkersMetadata(ctx, &routing.ScanRequest{
					ComponentID: componentID,
					Cursor:      cursor,
					Count:       count,
				})
				if gerr != nil {
					return printGolemError(gerr)
				}
				workers = resp.Workers
				if resp.NextCursor != 0 {
					fmt.Printf("# next cursor: %d\n", resp.NextCursor)
				}
			}

			format := parseOutputFormat(output)
			if wrote, err := printStructured(cmd.OutOrStdout(), format, workers); wrote || err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WORKER\tSTATUS\tRETRIES\tPENDING")
			for _, meta := range workers {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n",
					truncate(meta.WorkerId.String(), 48),
					meta.Status.Status,
					meta.Status.RetryCount,
					meta.Status.PendingInvocationCount,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&componentID, "component", "", "Component id (uuid)")
	cmd.Flags().Uint64Var(&cursor, "cursor", 0, "Scan cursor from a previous page")
	cmd.Flags().IntVar(&count, "count", 50, "Page size")
	cmd.Flags().BoolVar(&running, "running", false, "Only list currently-running workers (no paging)")
	cmd.Flags().StringVar(&output, "output", "table", "Output format: table, json, or yaml")
	return cmd
}

func completePromiseCmd() *cobra.Command {
	var dataB64 string
	cmd := &cobra.Command{
		Use:   "complete-promise <promise-id>",
		Short: "Complete a pending promise a worker is awaiting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			var data []byte
			if dataB64 != "" {
				decoded, err := base64.StdEncoding.DecodeString(dataB64)
				if err != nil {
					return fmt.Errorf("decode --data: %w", err)
				}
				data = decoded
			}
			client, err := dialExecutor()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, gerr := client.CompletePromise(ctx, &routing.CompletePromiseRequest{PromiseID: cliArgs[0], Data: data})
			if gerr != nil {
				return printGolemError(gerr)
			}
			fmt.Printf("completed promise %s\n", cliArgs[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&dataB64, "data", "", "Base64-encoded promise completion payload")
	return cmd
}

func printWorkerMetadata(meta domain.WorkerMetadata) {
	fmt.Printf("Worker:    %s\n", meta.WorkerId)
	fmt.Printf("Account:   %s\n", meta.AccountId)
	fmt.Printf("Status:    %s\n", meta.Status.Status)
	fmt.Printf("Retries:   %d\n", meta.Status.RetryCount)
	fmt.Printf("Pending:   %d\n", meta.Status.PendingInvocationCount)
	fmt.Printf("Created:   %s\n", meta.CreatedAt.Format(time.RFC3339))
	if meta.Status.LastError != "" {
		fmt.Printf("LastError: %s\n", meta.Status.LastError)
	}
	fmt.Printf("Args:      %s\n", meta.Args)
	if len(meta.Env) > 0 {
		fmt.Println("Env:")
		for _, e := range meta.Env {
			fmt.Printf("  %s=%s\n", e.Key, e.Value)
		}
	}
	fmt.Printf("Resources: component=%s memory=%s handles=%d\n",
		formatBytes(meta.Resources.ComponentSizeBytes),
		formatBytes(meta.Resources.LinearMemoryBytes),
		meta.Resources.OwnedResourceHandles,
	)
}

func formatBytes(n uint64) string {
	return strconv.FormatUint(n, 10) + "B"
}
