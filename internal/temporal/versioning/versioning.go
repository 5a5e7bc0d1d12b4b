// Package versioning defines workflow versions and task queue names.
package versioning

const (
	// Workflow versions for determinism tracking.
	AuditV1          = "audit-v1"
	ScheduledAuditV1 = "scheduled-audit-v1"

	// Task queues. QueueAudit runs workflows and read activities;
	// QueueExec runs the mutation activities with tight concurrency.
	QueueAudit = "catalog-audit"
	QueueExec  = "catalog-audit-exec"
)
