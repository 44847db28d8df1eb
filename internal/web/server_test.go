package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/gatekeeper/internal/ai"
	"github.com/kozaktomas/gatekeeper/internal/approval"
	"github.com/kozaktomas/gatekeeper/internal/config"
	"github.com/kozaktomas/gatekeeper/internal/database/mock"
	"github.com/kozaktomas/gatekeeper/internal/encoder"
)

type stubDetector struct {
	faces []encoder.Face
}

func (d *stubDetector) DetectFaces(ctx context.Context, imageData []byte) ([]encoder.Face, error) {
	return d.faces, nil
}

type stubProvider struct{}

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) ExtractVisitor(ctx context.Context, message string) (*ai.VisitorInfo, error) {
	return nil, ai.ErrUnparseable
}
func (p *stubProvider) JudgeApproval(ctx context.Context, visitorName, hostName, reply string) (bool, string, error) {
	return false, "", nil
}
func (p *stubProvider) AnswerQuery(ctx context.Context, question string, site *ai.SiteContext) (string, error) {
	return "", nil
}
func (p *stubProvider) GetUsage() *ai.Usage { return &ai.Usage{} }
func (p *stubProvider) ResetUsage()         {}

type stubSender struct{}

func (s *stubSender) SendWhatsApp(ctx context.Context, to, body string) (string, error) {
	return "SM1", nil
}

func newTestServer(t *testing.T, detector *stubDetector) *Server {
	t.Helper()

	identities := mock.NewMockIdentityStore()
	attendance := mock.NewMockAttendanceStore()
	visitors := mock.NewMockVisitorStore()
	hub := approval.NewCorrelationHub(&stubSender{})
	workflow := approval.NewWorkflow(
		approval.NewSessionStore(),
		hub,
		&stubProvider{},
		identities,
		attendance,
		visitors,
		"+420999",
		30*time.Minute,
	)

	cfg := config.Load()
	return NewServer(cfg, Deps{
		Detector:   detector,
		Identities: identities,
		Attendance: attendance,
		Visitors:   visitors,
		Workflow:   workflow,
		Hub:        hub,
	})
}

func tinyPNGBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 150, B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("could not encode test image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestServer_HealthRoute(t *testing.T) {
	server := newTestServer(t, &stubDetector{})

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// TestServer_EnrollThenCapture drives enrollment and a matching capture
// through the full router.
func TestServer_EnrollThenCapture(t *testing.T) {
	detector := &stubDetector{faces: []encoder.Face{{Encoding: []float32{1, 0}}}}
	server := newTestServer(t, detector)
	router := server.Router()
	img := tinyPNGBase64(t)

	enrollBody, _ := json.Marshal(map[string]string{"name": "Alice", "image": img})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/identities", bytes.NewReader(enrollBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	captureBody, _ := json.Marshal(map[string]string{"image": img})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/v1/capture", bytes.NewReader(captureBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []struct {
			Status string `json:"status"`
			Name   string `json:"name"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("could not parse capture response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Status != "recorded" || resp.Results[0].Name != "Alice" {
		t.Fatalf("unexpected capture results: %+v", resp.Results)
	}
}

func TestServer_WebhookRouteAcceptsForm(t *testing.T) {
	server := newTestServer(t, &stubDetector{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhooks/whatsapp/reply",
		bytes.NewReader([]byte("From=whatsapp%3A%2B420111&Body=yes")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	server.Router().ServeHTTP(rec, req)

	// No pending request: discarded but acknowledged.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
