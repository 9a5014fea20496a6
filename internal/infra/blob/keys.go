package blob

import "fmt"

// Key constructors for the coordination keyspace. Every key the
// orchestrator writes goes through one of these, so the cleanup
// patterns below stay in sync with the writers.

func ModelGlobalKey(modelID string) string { return fmt.Sprintf("model:%s:global", modelID) }
func ModelMetaKey(modelID string) string   { return fmt.Sprintf("model:%s:meta", modelID) }

func GradientsKey(modelID string, round int) string {
	return fmt.Sprintf("gradients:%s:%d", modelID, round)
}

func StopFlagKey(jobID string) string        { return fmt.Sprintf("training:%s:stop", jobID) }
func HeartbeatKey(deviceID string) string    { return fmt.Sprintf("heartbeat:%s", deviceID) }
func CommandQueueKey(deviceID string) string { return fmt.Sprintf("command:%s", deviceID) }

// LatestMetricsKey holds the most recent round summary for dashboards.
const LatestMetricsKey = "training:latest_metrics"

// ModelPattern matches every key belonging to a model.
func ModelPattern(modelID string) string { return fmt.Sprintf("model:%s:*", modelID) }

// GradientsPattern matches every gradient queue for a model.
func GradientsPattern(modelID string) string { return fmt.Sprintf("gradients:%s:*", modelID) }
