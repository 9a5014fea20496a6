package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/codec"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/blob"
	"github.com/edgeorchestra/edgeorchestra/internal/infra/metrics"
)

// handleDownloadModel streams the model blob as a metadata frame
// followed by 32 KiB chunk frames, in order. No resume; clients
// reassemble in memory.
func (s *Server) handleDownloadModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")
	if modelID == "" {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "model id is required"))
		return
	}

	encoded, ok, err := s.blobs.Get(r.Context(), blob.ModelGlobalKey(modelID))
	if err != nil {
		writeRPCError(w, err)
		return
	}
	if !ok {
		writeRPCError(w, domain.E(domain.KindNotFound, "model %s has no blob", modelID))
		return
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		writeRPCError(w, domain.Wrap(domain.KindInternal, err, "corrupt model blob"))
		return
	}

	meta := s.modelMeta(r.Context(), modelID, len(payload))
	metaJSON, _ := json.Marshal(meta)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if err := writeFrame(w, frameMetadata, metaJSON); err != nil {
		return
	}
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := writeFrame(w, frameChunk, payload[off:end]); err != nil {
			return
		}
	}
}

// handleUploadModel accepts a framed stream in the request body. The
// first frame must be metadata; empty uploads are rejected.
func (s *Server) handleUploadModel(w http.ResponseWriter, r *http.Request) {
	frameType, payload, err := readFrame(r.Body)
	if err != nil {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "missing metadata frame"))
		return
	}
	if frameType != frameMetadata {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "first frame must be metadata"))
		return
	}
	var meta domain.ModelMeta
	if err := json.Unmarshal(payload, &meta); err != nil || meta.ModelID == "" {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "invalid model metadata"))
		return
	}

	var buf bytes.Buffer
	for {
		frameType, payload, err = readFrame(r.Body)
		if err == io.EOF {
			break
		}
		if err != nil {
			writeRPCError(w, domain.E(domain.KindInvalidArgument, "malformed frame stream"))
			return
		}
		if frameType != frameChunk {
			writeRPCError(w, domain.E(domain.KindInvalidArgument, "unexpected frame type 0x%02x", frameType))
			return
		}
		buf.Write(payload)
	}
	if buf.Len() == 0 {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "empty model upload"))
		return
	}

	meta.SizeBytes = buf.Len()
	metaJSON, _ := json.Marshal(meta)
	ctx := r.Context()
	if err := s.blobs.Set(ctx, blob.ModelGlobalKey(meta.ModelID), base64.StdEncoding.EncodeToString(buf.Bytes())); err != nil {
		writeRPCError(w, err)
		return
	}
	if err := s.blobs.Set(ctx, blob.ModelMetaKey(meta.ModelID), string(metaJSON)); err != nil {
		writeRPCError(w, err)
		return
	}
	s.log.Info().Str("model", meta.ModelID).Int("bytes", buf.Len()).Msg("model uploaded")
	writeRPCJSON(w, http.StatusOK, map[string]any{"model_id": meta.ModelID, "size_bytes": buf.Len()})
}

type submitGradientsRequest struct {
	DeviceID   string             `json:"device_id"`
	ModelID    string             `json:"model_id"`
	Round      int                `json:"round"`
	Gradients  []byte             `json:"gradients"`
	NumSamples int                `json:"num_samples"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// handleSubmitGradients validates and decompresses one device's round
// contribution and appends it to the round's bucket.
func (s *Server) handleSubmitGradients(w http.ResponseWriter, r *http.Request) {
	var req submitGradientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, domain.E(domain.KindInvalidArgument, "malformed request body"))
		return
	}
	if err := validateSubmission(&req); err != nil {
		metrics.GradientSubmissionsTotal.WithLabelValues("rejected").Inc()
		writeRPCError(w, err)
		return
	}

	decompressed, err := codec.Decompress(req.Gradients)
	if err != nil {
		metrics.GradientSubmissionsTotal.WithLabelValues("rejected").Inc()
		writeRPCError(w, domain.Wrap(domain.KindInvalidArgument, err, "undecodable gradient payload"))
		return
	}

	envelope, _ := json.Marshal(domain.GradientSubmission{
		DeviceID:   req.DeviceID,
		Gradients:  decompressed,
		NumSamples: req.NumSamples,
		Metrics:    req.Metrics,
	})
	bucket := blob.GradientsKey(req.ModelID, req.Round)
	if err := s.blobs.RPush(r.Context(), bucket, string(envelope)); err != nil {
		writeRPCError(w, err)
		return
	}

	metrics.GradientSubmissionsTotal.WithLabelValues("accepted").Inc()
	metrics.GradientPayloadBytes.Observe(float64(len(decompressed)))
	s.log.Debug().Str("device", req.DeviceID).Str("model", req.ModelID).
		Int("round", req.Round).Int("num_samples", req.NumSamples).
		Msg("gradients accepted")
	writeRPCJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func validateSubmission(req *submitGradientsRequest) error {
	switch {
	case req.DeviceID == "":
		return domain.E(domain.KindInvalidArgument, "device_id is required")
	case req.ModelID == "":
		return domain.E(domain.KindInvalidArgument, "model_id is required")
	case req.Round < 1:
		return domain.E(domain.KindInvalidArgument, "round must be >= 1")
	case req.NumSamples <= 0:
		return domain.E(domain.KindInvalidArgument, "num_samples must be > 0")
	case len(req.Gradients) < codec.HeaderSize:
		return domain.E(domain.KindInvalidArgument, "gradient payload too small")
	}
	return nil
}

// modelMeta loads the stored metadata record, synthesizing a minimal one
// when it is missing.
func (s *Server) modelMeta(ctx context.Context, modelID string, size int) domain.ModelMeta {
	raw, ok, err := s.blobs.Get(ctx, blob.ModelMetaKey(modelID))
	if err == nil && ok {
		var meta domain.ModelMeta
		if json.Unmarshal([]byte(raw), &meta) == nil {
			meta.SizeBytes = size
			return meta
		}
	}
	return domain.ModelMeta{ModelID: modelID, SizeBytes: size}
}
