// Package rpc is the device-facing surface: registration, the bidi
// heartbeat stream, framed model transfer, and gradient submission.
package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/heartbeat"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
)

// Store is the slice of the device repository the RPC surface uses.
type Store interface {
	CreateDevice(d *domain.Device) error
	GetDevice(id uuid.UUID) (*domain.Device, error)
	ListDevices(status domain.DeviceStatus) ([]domain.Device, error)
	UpdateDeviceStatus(id uuid.UUID, status domain.DeviceStatus) error
}

// Server handles device RPC traffic.
type Server struct {
	store    Store
	blobs    blob.Store
	monitor  *heartbeat.Monitor
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the device RPC server.
func NewServer(store Store, blobs blob.Store, monitor *heartbeat.Monitor, log zerolog.Logger) *Server {
	return &Server{
		store:   store,
		blobs:   blobs,
		monitor: monitor,
		log:     log.With().Str("component", "rpc").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Devices connect from app contexts without an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the chi router for the RPC port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/rpc/v1", func(r chi.Router) {
		r.Post("/devices/register", s.handleRegister)
		r.Post("/devices/{id}/unregister", s.handleUnregister)
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{id}", s.handleGetDevice)

		r.Get("/heartbeat", s.handleHeartbeat)

		r.Get("/models/{id}/download", s.handleDownloadModel)
		r.Post("/models/upload", s.handleUploadModel)
		r.Post("/gradients", s.handleSubmitGradients)
	})
	return r
}

type registerRequest struct {
	DeviceID          string `json:"device_id,omitempty"`
	Name              string `json:"name"`
	DeviceModel       string `json:"device_model"`
	OSVersion         string `json:"os_version"`
	Chip              string `json:"chip,omitempty"`
	MemoryBytes       int64  `json:"memory_bytes,omitempty"`
	CPUCores          int    `json:"cpu_cores,omitempty"`
	GPUCores          int    `json:"gpu_cores,omitempty"`
	NeuralEngineCores int    `json:"neural_engine_cores,omitempty"`
}

// handleRegister creates a device or revives a known one. Re-registering
// an existing device id is idempotent and brings it online.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "malformed request body"))
		return
	}
	if req.Name == "" {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "name is required"))
		return
	}

	if req.DeviceID != "" {
		id, err := uuid.Parse(req.DeviceID)
		if err != nil {
			writeRPCError(w, domain.E(domain.KindInvalidArgument, "invalid device_id %q", req.DeviceID))
			return
		}
		existing, err := s.store.GetDevice(id)
		if err != nil {
			writeRPCError(w, err)
			return
		}
		if existing != nil {
			if existing.Status == domain.DeviceOffline {
				if err := s.store.UpdateDeviceStatus(id, domain.DeviceOnline); err != nil {
					writeRPCError(w, err)
					return
				}
				existing.Status = domain.DeviceOnline
			}
			writeRPCJSON(w, http.StatusOK, existing)
			return
		}
	}

	now := time.Now().UTC()
	dev := &domain.Device{
		ID:                uuid.New(),
		Name:              req.Name,
		DeviceModel:       req.DeviceModel,
		OSVersion:         req.OSVersion,
		Chip:              req.Chip,
		MemoryBytes:       req.MemoryBytes,
		CPUCores:          req.CPUCores,
		GPUCores:          req.GPUCores,
		NeuralEngineCores: req.NeuralEngineCores,
		Status:            domain.DeviceOnline,
		Metrics:           map[string]float64{},
		RegisteredAt:      now,
		LastSeenAt:        now,
	}
	if err := s.store.CreateDevice(dev); err != nil {
		writeRPCError(w, err)
		return
	}
	s.log.Info().Str("device", dev.ID.String()).Str("name", dev.Name).Msg("device registered")
	writeRPCJSON(w, http.StatusCreated, dev)
}

// handleUnregister marks a device offline and drops its coordination
// keys. The row stays for fleet history; hard deletion is an operator
// API action.
func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id, err := parseDeviceID(r)
	if err != nil {
		writeRPCError(w, err)
		return
	}
	dev, err := s.store.GetDevice(id)
	if err != nil {
		writeRPCError(w, err)
		return
	}
	if dev == nil {
		writeRPCError(w, domain.E(domain.KindNotFound, "device %s not found", id))
		return
	}
	if err := s.store.UpdateDeviceStatus(id, domain.DeviceOffline); err != nil {
		writeRPCError(w, err)
		return
	}
	s.blobs.Delete(r.Context(),
		blob.HeartbeatKey(id.String()),
		blob.CommandQueueKey(id.String()))
	s.log.Info().Str("device", id.String()).Msg("device unregistered")
	writeRPCJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": string(domain.DeviceOffline)})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	status := domain.DeviceStatus(r.URL.Query().Get("status"))
	if status != "" && !domain.ValidDeviceStatus(status) {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "unknown device status %q", status))
		return
	}
	devices, err := s.store.ListDevices(status)
	if err != nil {
		writeRPCError(w, err)
		return
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	writeRPCJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := parseDeviceID(r)
	if err != nil {
		writeRPCError(w, err)
		return
	}
	dev, err := s.store.GetDevice(id)
	if err != nil {
		writeRPCError(w, err)
		return
	}
	if dev == nil {
		writeRPCError(w, domain.E(domain.KindNotFound, "device %s not found", id))
		return
	}
	writeRPCJSON(w, http.StatusOK, dev)
}

func parseDeviceID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.E(domain.KindInvalidArgument, "invalid device id %q", raw)
	}
	return id, nil
}

func writeRPCJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRPCError reports classified errors without leaking internals.
func writeRPCError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindInternal {
		msg = "internal error"
	}
	writeRPCJSON(w, kind.HTTPStatus(), map[string]any{
		"error": map[string]string{
			"type":    kind.String(),
			"message": msg,
		},
	})
}
