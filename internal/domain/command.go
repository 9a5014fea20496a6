package domain

// CommandType identifies a command delivered to a device over its
// heartbeat stream.
type CommandType string

const (
	CommandUpdateInterval CommandType = "update_interval"
	CommandStartTraining  CommandType = "start_training"
	CommandStopTraining   CommandType = "stop_training"
	CommandShutdown       CommandType = "shutdown"
	CommandAck            CommandType = "ack"
)

// Command is one entry in a device's pending-command FIFO, stored JSON
// encoded in the blob store.
type Command struct {
	Type       CommandType       `json:"type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Parameter keys of start_training commands. The partition pair lets a
// device deterministically split its local dataset so a resubmission on a
// retried round does not double-count samples.
const (
	ParamJobID          = "job_id"
	ParamModelID        = "model_id"
	ParamRound          = "round"
	ParamPartitionIndex = "partition_index"
	ParamPartitionTotal = "partition_total"
	ParamArchitecture   = "architecture"
)

// GradientSubmission is the JSON envelope appended to a round's gradient
// bucket for each accepted device upload. Gradients hold the decompressed
// float32 layered payload (base64 in JSON).
type GradientSubmission struct {
	DeviceID   string             `json:"device_id"`
	Gradients  []byte             `json:"gradients"`
	NumSamples int                `json:"num_samples"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}
