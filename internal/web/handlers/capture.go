package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/approval"
	"github.com/kozaktomas/gatekeeper/internal/database"
	"github.com/kozaktomas/gatekeeper/internal/encoder"
	"github.com/kozaktomas/gatekeeper/internal/recognition"
)

const dateFormat = "2006-01-02"
const timeFormat = "15:04:05"

// FaceDetector produces face encodings from a normalized JPEG frame.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]encoder.Face, error)
}

// CaptureHandler handles camera frame submissions.
type CaptureHandler struct {
	detector   FaceDetector
	identities database.IdentityStore
	attendance database.AttendanceStore
	workflow   *approval.Workflow
	threshold  float64
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(
	detector FaceDetector,
	identities database.IdentityStore,
	attendance database.AttendanceStore,
	workflow *approval.Workflow,
	threshold float64,
) *CaptureHandler {
	return &CaptureHandler{
		detector:   detector,
		identities: identities,
		attendance: attendance,
		workflow:   workflow,
		threshold:  threshold,
	}
}

// CaptureRequest carries one camera frame as a base64-encoded image,
// optionally with a data URL prefix.
type CaptureRequest struct {
	Image string `json:"image"`
}

// FaceResult is the per-face outcome of a capture.
type FaceResult struct {
	Status    string `json:"status"` // "recorded", "already_present" or "visitor"
	Name      string `json:"name,omitempty"`
	Time      string `json:"time,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Capture classifies every detected face in the frame. Matched identities
// are written to the attendance ledger; unmatched faces spawn a visitor
// session. The frame itself is processed in memory and never persisted.
func (h *CaptureHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}

	raw, err := encoder.DecodeBase64Image(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is not valid base64")
		return
	}

	frame, err := encoder.NormalizeFrame(raw)
	if err != nil {
		if errors.Is(err, encoder.ErrUnsupportedFormat) {
			respondError(w, http.StatusBadRequest, "unsupported image format")
			return
		}
		respondError(w, http.StatusBadRequest, "could not decode image")
		return
	}

	enrolled, err := h.identities.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not read identities")
		return
	}
	if enrolled == 0 {
		respondError(w, http.StatusNotFound, "no identities enrolled")
		return
	}

	faces, err := h.detector.DetectFaces(r.Context(), frame)
	if err != nil {
		log.Printf("face detection failed: %v", err)
		respondError(w, http.StatusBadGateway, "face detection unavailable")
		return
	}
	if len(faces) == 0 {
		respondError(w, http.StatusBadRequest, "no face detected")
		return
	}

	results := make([]FaceResult, 0, len(faces))
	for _, face := range faces {
		result, err := h.classifyFace(r.Context(), face.Encoding)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "classification failed")
			return
		}
		results = append(results, result)
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *CaptureHandler) classifyFace(ctx context.Context, probe []float32) (FaceResult, error) {
	gallery, err := h.identities.Gallery(ctx, probe)
	if err != nil {
		return FaceResult{}, err
	}

	match, err := recognition.Classify(probe, gallery, h.threshold)
	if err != nil {
		return FaceResult{}, err
	}

	if match == nil {
		session := h.workflow.StartSession()
		return FaceResult{Status: "visitor", SessionID: session.ID}, nil
	}

	now := time.Now()
	recorded, err := h.attendance.MarkIfAbsent(ctx, match.Name, now.Format(dateFormat), now.Format(timeFormat))
	if err != nil {
		return FaceResult{}, err
	}

	status := "already_present"
	if recorded {
		status = "recorded"
	}
	return FaceResult{Status: status, Name: match.Name, Time: now.Format(timeFormat)}, nil
}
