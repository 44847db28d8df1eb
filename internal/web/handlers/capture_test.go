package handlers

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/gatekeeper/internal/encoder"
)

func newCaptureHandler(env *handlerEnv) *CaptureHandler {
	return NewCaptureHandler(env.detector, env.identities, env.attendance, env.workflow, 0.5)
}

func TestCapture_InvalidBody(t *testing.T) {
	env := newHandlerEnv(t)
	handler := newCaptureHandler(env)

	req := httptest.NewRequest("POST", "/api/v1/capture", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	handler.Capture(rec, req)

	assertStatusCode(t, rec, 400)
	assertJSONError(t, rec, errInvalidRequestBody)
}

func TestCapture_MissingImage(t *testing.T) {
	env := newHandlerEnv(t)
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{}))

	assertStatusCode(t, rec, 400)
	assertJSONError(t, rec, "image is required")
}

func TestCapture_InvalidBase64(t *testing.T) {
	env := newHandlerEnv(t)
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: "@@not-base64@@"}))

	assertStatusCode(t, rec, 400)
}

func TestCapture_GrayscaleRejected(t *testing.T) {
	env := newHandlerEnv(t)
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: grayImageBase64(t)}))

	assertStatusCode(t, rec, 400)
	assertJSONError(t, rec, "unsupported image format")
}

func TestCapture_NoIdentitiesEnrolled(t *testing.T) {
	env := newHandlerEnv(t)
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: testImageBase64(t)}))

	assertStatusCode(t, rec, 404)
	assertJSONError(t, rec, "no identities enrolled")
}

func TestCapture_DetectorUnavailable(t *testing.T) {
	env := newHandlerEnv(t)
	if _, err := env.identities.Enroll(context.Background(), "Alice", []float32{1, 0}, ""); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	env.detector.err = errors.New("connection refused")
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: testImageBase64(t)}))

	assertStatusCode(t, rec, 502)
}

func TestCapture_NoFaceDetected(t *testing.T) {
	env := newHandlerEnv(t)
	if _, err := env.identities.Enroll(context.Background(), "Alice", []float32{1, 0}, ""); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: testImageBase64(t)}))

	assertStatusCode(t, rec, 400)
	assertJSONError(t, rec, "no face detected")
}

func TestCapture_MatchRecordsAttendanceOnce(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()

	if _, err := env.identities.Enroll(ctx, "Alice", []float32{1, 0}, ""); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	env.detector.faces = []encoder.Face{{Encoding: []float32{1, 0}}}
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: testImageBase64(t)}))
	assertStatusCode(t, rec, 200)

	var resp struct {
		Results []FaceResult `json:"results"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Status != "recorded" || resp.Results[0].Name != "Alice" {
		t.Errorf("unexpected result: %+v", resp.Results[0])
	}

	// A second frame of the same person the same day is a no-op.
	rec = httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: testImageBase64(t)}))
	assertStatusCode(t, rec, 200)

	parseJSONResponse(t, rec, &resp)
	if resp.Results[0].Status != "already_present" {
		t.Errorf("expected already_present, got %+v", resp.Results[0])
	}
}

func TestCapture_UnmatchedFaceStartsVisitorSession(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()

	if _, err := env.identities.Enroll(ctx, "Alice", []float32{1, 0}, ""); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	// Probe far from every gallery entry.
	env.detector.faces = []encoder.Face{{Encoding: []float32{-1, 5}}}
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: testImageBase64(t)}))
	assertStatusCode(t, rec, 200)

	var resp struct {
		Results []FaceResult `json:"results"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Status != "visitor" || resp.Results[0].SessionID == "" {
		t.Errorf("expected a visitor session, got %+v", resp.Results[0])
	}

	// The session is live and pollable.
	if _, _, err := env.workflow.Status(ctx, resp.Results[0].SessionID); err != nil {
		t.Errorf("session should exist: %v", err)
	}
}

func TestCapture_MultipleFaces(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()

	if _, err := env.identities.Enroll(ctx, "Alice", []float32{1, 0}, ""); err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	env.detector.faces = []encoder.Face{
		{Encoding: []float32{1, 0}},  // Alice
		{Encoding: []float32{-1, 5}}, // unknown
	}
	handler := newCaptureHandler(env)

	rec := httptest.NewRecorder()
	handler.Capture(rec, postJSON(t, "/api/v1/capture", CaptureRequest{Image: testImageBase64(t)}))
	assertStatusCode(t, rec, 200)

	var resp struct {
		Results []FaceResult `json:"results"`
	}
	parseJSONResponse(t, rec, &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Status != "recorded" {
		t.Errorf("expected first face recorded, got %+v", resp.Results[0])
	}
	if resp.Results[1].Status != "visitor" {
		t.Errorf("expected second face as visitor, got %+v", resp.Results[1])
	}
}
