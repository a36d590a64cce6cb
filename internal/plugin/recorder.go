package plugin

import (
	"context"

	"loxvm/internal/gc"
)

// CycleRecorder adapts a plugin Client to gc.CycleRecorder, so the
// collector can ship telemetry through the record_cycle RPC without
// internal/gc importing internal/plugin.
type CycleRecorder struct {
	client *Client
}

func NewCycleRecorder(client *Client) *CycleRecorder {
	return &CycleRecorder{client: client}
}

func (r *CycleRecorder) RecordCycle(ctx context.Context, report gc.CycleReport) error {
	return r.client.Call("record_cycle", report, nil)
}
