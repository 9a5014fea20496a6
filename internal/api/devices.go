package api

import (
	"net/http"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	status := domain.DeviceStatus(r.URL.Query().Get("status"))
	if status != "" && !domain.ValidDeviceStatus(status) {
		writeError(w, domain.E(domain.KindInvalidArgument, "unknown device status %q", status))
		return
	}
	devices, err := s.store.ListDevices(status)
	if err != nil {
		writeError(w, err)
		return
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	dev, err := s.store.GetDevice(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if dev == nil {
		writeError(w, domain.E(domain.KindNotFound, "device %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	deleted, err := s.store.DeleteDevice(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.E(domain.KindNotFound, "device %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": "deleted"})
}
