package bootstrap

import "context"

// AuditLog is an operator-visible lifecycle record.
type AuditLog struct {
	Action  string
	Message string
	Meta    map[string]any
}

type AuditLogger interface {
	Log(ctx context.Context, entry AuditLog)
}
