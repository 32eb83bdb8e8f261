package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oriys/workerexec/internal/domain"
	executorgrpc "github.com/oriys/workerexec/internal/grpc"
	"github.com/oriys/workerexec/internal/routing"
)

// dialExecutor connects to the gRPC address CLI subcommands were told to
// reach, returning the same routing.ExecutorClient the daemon dispatches
// through internally.
func dialExecutor() (routing.ExecutorClient, error) {
	client, err := executorgrpc.Dial(serverAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", serverAddr, err)
	}
	return client, nil
}

// parseWorkerRef splits "<component-uuid>/<worker-name>" into a WorkerId.
func parseWorkerRef(ref string) (domain.WorkerId, error) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return domain.WorkerId{}, fmt.Errorf("worker ref must be <component-id>/<worker-name>, got %q", ref)
	}
	componentID, err := uuid.Parse(parts[0])
	if err != nil {
		return domain.WorkerId{}, fmt.Errorf("invalid component id %q: %w", parts[0], err)
	}
	return domain.WorkerId{ComponentID: componentID, WorkerName: parts[1]}, nil
}

// parseEnvVars parses a slice of "KEY=VALUE" flag values into EnvVar,
// preserving flag order since WorkerMetadata compares env as an ordered
// sequence (domain.EnvEqual).
func parseEnvVars(kvs []string) ([]domain.EnvVar, error) {
	out := make([]domain.EnvVar, 0, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", kv)
		}
		out = append(out, domain.EnvVar{Key: key, Value: value})
	}
	return out, nil
}

// printGolemError renders a GolemError the way cobra RunE expects: a
// non-nil error from the command.
func printGolemError(gerr *routing.GolemError) error {
	if gerr == nil {
		return nil
	}
	return gerr.AsError()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
