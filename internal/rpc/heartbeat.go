package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/heartbeat"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
)

// heartbeatRequest is one inbound message on the heartbeat stream.
// Unknown fields are ignored so old servers tolerate newer devices.
type heartbeatRequest struct {
	DeviceID string            `json:"device_id"`
	Sequence int64             `json:"sequence"`
	Metrics  *telemetryPayload `json:"metrics,omitempty"`
}

type telemetryPayload struct {
	CPUUsage        *float64        `json:"cpu_usage,omitempty"`
	MemoryUsage     *float64        `json:"memory_usage,omitempty"`
	ThermalPressure *float64        `json:"thermal_pressure,omitempty"`
	LowPowerMode    *bool           `json:"is_low_power_mode,omitempty"`
	Battery         *batteryPayload `json:"battery,omitempty"`
}

type batteryPayload struct {
	Level *float64 `json:"level,omitempty"`
	State string   `json:"state,omitempty"`
}

// heartbeatResponse is emitted one-for-one per request, in order.
type heartbeatResponse struct {
	Command     string            `json:"command"`
	AckSequence int64             `json:"ack_sequence"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// handleHeartbeat upgrades to a websocket and serves the bidi stream: a
// pending command (or ack) per request, with the latest training scalars
// piggy-backed in metadata. A peer close tears down both directions.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("heartbeat upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var req heartbeatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		resp, err := s.heartbeatResponse(ctx, req)
		if err != nil {
			s.log.Warn().Err(err).Str("device", req.DeviceID).Msg("heartbeat processing failed")
			resp = &heartbeatResponse{Command: string(domain.CommandAck), AckSequence: req.Sequence}
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Server) heartbeatResponse(ctx context.Context, req heartbeatRequest) (*heartbeatResponse, error) {
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		return nil, domain.E(domain.KindInvalidArgument, "invalid device_id %q", req.DeviceID)
	}

	if err := s.monitor.ProcessHeartbeat(ctx, deviceID, toTelemetry(req.Metrics)); err != nil {
		return nil, err
	}

	resp := &heartbeatResponse{
		Command:     string(domain.CommandAck),
		AckSequence: req.Sequence,
		Metadata:    s.latestMetricsMetadata(ctx),
	}
	cmd, err := s.monitor.PopPendingCommand(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if cmd != nil {
		resp.Command = string(cmd.Type)
		resp.Parameters = cmd.Parameters
	}
	return resp, nil
}

// toTelemetry flattens the wire payload into the monitor's metric map.
func toTelemetry(p *telemetryPayload) heartbeat.Telemetry {
	var t heartbeat.Telemetry
	if p == nil {
		return t
	}
	t.Metrics = map[string]float64{}
	if p.CPUUsage != nil {
		t.Metrics[domain.MetricCPUUsage] = *p.CPUUsage
	}
	if p.MemoryUsage != nil {
		t.Metrics[domain.MetricMemoryUsage] = *p.MemoryUsage
	}
	if p.ThermalPressure != nil {
		t.Metrics[domain.MetricThermalPressure] = *p.ThermalPressure
	}
	if p.LowPowerMode != nil {
		v := 0.0
		if *p.LowPowerMode {
			v = 1.0
		}
		t.Metrics[domain.MetricLowPowerMode] = v
	}
	if p.Battery != nil {
		t.BatteryLevel = p.Battery.Level
		t.BatteryState = p.Battery.State
	}
	if len(t.Metrics) == 0 {
		t.Metrics = nil
	}
	return t
}

// latestMetricsMetadata exposes the newest training scalars as the
// string map heartbeat responses carry.
func (s *Server) latestMetricsMetadata(ctx context.Context) map[string]string {
	raw, ok, err := s.blobs.Get(ctx, blob.LatestMetricsKey)
	if err != nil || !ok {
		return nil
	}
	var latest domain.LatestMetrics
	if err := json.Unmarshal([]byte(raw), &latest); err != nil {
		return nil
	}
	return map[string]string{
		"server_accuracy": strconv.FormatFloat(latest.ServerAccuracy, 'f', -1, 64),
		"server_loss":     strconv.FormatFloat(latest.ServerLoss, 'f', -1, 64),
		"round":           strconv.Itoa(latest.Round),
		"job_id":          latest.JobID,
	}
}
