package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/gatekeeper/internal/database"
	"github.com/kozaktomas/gatekeeper/internal/encoder"
)

// Enrollment policies for images containing more than one face.
const (
	PolicyFirst  = "first"  // enroll the first detected face
	PolicyStrict = "strict" // reject the image
)

// IdentitiesHandler handles enrollment and gallery management.
type IdentitiesHandler struct {
	detector   FaceDetector
	identities database.IdentityStore
	policy     string
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(detector FaceDetector, identities database.IdentityStore, policy string) *IdentitiesHandler {
	if policy == "" {
		policy = PolicyFirst
	}
	return &IdentitiesHandler{
		detector:   detector,
		identities: identities,
		policy:     policy,
	}
}

// EnrollRequest is the enrollment request body.
type EnrollRequest struct {
	Name     string `json:"name"`
	Image    string `json:"image"` // base64, optional data URL prefix
	WhatsApp string `json:"whatsapp"`
}

// IdentityResponse represents an enrolled identity in API responses.
// Encodings are never exposed.
type IdentityResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	WhatsApp  string `json:"whatsapp,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Enroll stores a new identity from a name and a face image.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
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

	faces, err := h.detector.DetectFaces(r.Context(), frame)
	if err != nil {
		log.Printf("face detection failed during enrollment: %v", err)
		respondError(w, http.StatusBadGateway, "face detection unavailable")
		return
	}
	if len(faces) == 0 {
		respondError(w, http.StatusBadRequest, "no face detected")
		return
	}
	if len(faces) > 1 && h.policy == PolicyStrict {
		respondError(w, http.StatusBadRequest, "image contains more than one face")
		return
	}

	id, err := h.identities.Enroll(r.Context(), req.Name, faces[0].Encoding, req.WhatsApp)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateName) {
			respondError(w, http.StatusConflict, "name already enrolled")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not enroll identity")
		return
	}

	log.Printf("enrolled identity %q (id %d)", sanitizeForLog(req.Name), id)
	respondJSON(w, http.StatusCreated, IdentityResponse{ID: id, Name: req.Name, WhatsApp: req.WhatsApp})
}

// List returns all enrolled identities.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.identities.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list identities")
		return
	}

	response := make([]IdentityResponse, len(identities))
	for i, identity := range identities {
		response[i] = IdentityResponse{
			ID:        identity.ID,
			Name:      identity.Name,
			WhatsApp:  identity.WhatsApp,
			CreatedAt: identity.CreatedAt.Format(time.RFC3339),
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// Remove deletes an identity by name.
func (h *IdentitiesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.identities.Remove(r.Context(), name); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "identity not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not remove identity")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"removed": name})
}

// RenameRequest is the rename request body.
type RenameRequest struct {
	Name string `json:"name"`
}

// Rename changes an identity's name.
func (h *IdentitiesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.identities.Rename(r.Context(), id, req.Name); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "identity not found")
		case errors.Is(err, database.ErrDuplicateName):
			respondError(w, http.StatusConflict, "name already enrolled")
		default:
			respondError(w, http.StatusInternalServerError, "could not rename identity")
		}
		return
	}

	respondJSON(w, http.StatusOK, IdentityResponse{ID: id, Name: req.Name})
}
