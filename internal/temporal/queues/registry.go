// Package queues defines per-queue worker configuration for task-queue partitioning.
package queues

import (
	"fmt"
	"strings"

	"go.temporal.io/sdk/worker"

	"github.com/syncshop/catalog-audit/internal/temporal/versioning"
)

// QueueConfig holds worker options for a single task queue.
type QueueConfig struct {
	Name    string
	Options worker.Options
}

// DefaultConfigs returns the standard per-queue worker options.
//
//   - QueueAudit: audit workflows and catalog reads
//   - QueueExec: catalog writes, one at a time per worker
func DefaultConfigs() map[string]QueueConfig {
	return map[string]QueueConfig{
		versioning.QueueAudit: {
			Name: versioning.QueueAudit,
			Options: worker.Options{
				MaxConcurrentActivityExecutionSize:     5,
				MaxConcurrentWorkflowTaskExecutionSize: 10,
			},
		},
		versioning.QueueExec: {
			Name: versioning.QueueExec,
			Options: worker.Options{
				MaxConcurrentActivityExecutionSize:     1,
				MaxConcurrentWorkflowTaskExecutionSize: 1,
			},
		},
	}
}

// ParseQueues parses a comma-separated queue list (e.g. "audit,exec")
// into a set of queue names. Accepts both short names ("audit") and
// full names ("catalog-audit"). An empty list selects every queue.
func ParseQueues(raw string) ([]string, error) {
	all := []string{versioning.QueueAudit, versioning.QueueExec}
	if raw == "" {
		return all, nil
	}

	shortNames := map[string]string{
		"audit": versioning.QueueAudit,
		"exec":  versioning.QueueExec,
	}
	fullNames := map[string]bool{
		versioning.QueueAudit: true,
		versioning.QueueExec:  true,
	}

	seen := make(map[string]bool)
	var result []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if full, ok := shortNames[name]; ok {
			name = full
		}
		if !fullNames[name] {
			return nil, fmt.Errorf("unknown queue %q", name)
		}
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}
	if len(result) == 0 {
		return all, nil
	}
	return result, nil
}
