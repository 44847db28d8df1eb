package handlers

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

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/gatekeeper/internal/ai"
	"github.com/kozaktomas/gatekeeper/internal/approval"
	"github.com/kozaktomas/gatekeeper/internal/database/mock"
	"github.com/kozaktomas/gatekeeper/internal/encoder"
)

// fakeDetector is a scriptable FaceDetector.
type fakeDetector struct {
	faces []encoder.Face
	err   error
	calls int
}

func (f *fakeDetector) DetectFaces(ctx context.Context, imageData []byte) ([]encoder.Face, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.faces, nil
}

// fakeProvider is a scriptable ai.Provider for handler tests.
type fakeProvider struct {
	extractInfo   *ai.VisitorInfo
	extractErr    error
	judgeApproved bool
	judgeReason   string
	judgeErr      error
	answer        string

	usage ai.Usage
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ExtractVisitor(ctx context.Context, message string) (*ai.VisitorInfo, error) {
	if p.extractErr != nil {
		return nil, p.extractErr
	}
	return p.extractInfo, nil
}

func (p *fakeProvider) JudgeApproval(ctx context.Context, visitorName, hostName, reply string) (bool, string, error) {
	if p.judgeErr != nil {
		return false, "", p.judgeErr
	}
	return p.judgeApproved, p.judgeReason, nil
}

func (p *fakeProvider) AnswerQuery(ctx context.Context, question string, site *ai.SiteContext) (string, error) {
	return p.answer, nil
}

func (p *fakeProvider) GetUsage() *ai.Usage { return &p.usage }
func (p *fakeProvider) ResetUsage()         { p.usage = ai.Usage{} }

// fakeSender records outbound messages.
type fakeSender struct {
	sent []string // recipient addresses
	err  error
}

func (f *fakeSender) SendWhatsApp(ctx context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to)
	return "SM1", nil
}

// handlerEnv bundles the stores and workflow used by handler tests.
type handlerEnv struct {
	detector   *fakeDetector
	provider   *fakeProvider
	sender     *fakeSender
	hub        *approval.CorrelationHub
	workflow   *approval.Workflow
	identities *mock.MockIdentityStore
	attendance *mock.MockAttendanceStore
	visitors   *mock.MockVisitorStore
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	sender := &fakeSender{}
	hub := approval.NewCorrelationHub(sender)
	env := &handlerEnv{
		detector:   &fakeDetector{},
		provider:   &fakeProvider{},
		sender:     sender,
		hub:        hub,
		identities: mock.NewMockIdentityStore(),
		attendance: mock.NewMockAttendanceStore(),
		visitors:   mock.NewMockVisitorStore(),
	}
	env.workflow = approval.NewWorkflow(
		approval.NewSessionStore(),
		hub,
		env.provider,
		env.identities,
		env.attendance,
		env.visitors,
		"+420999",
		30*time.Minute,
	)
	return env
}

// testImageBase64 produces a small RGBA PNG as a base64 payload.
func testImageBase64(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// grayImageBase64 produces a grayscale PNG, which the capture pipeline rejects.
func grayImageBase64(t *testing.T) string {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// postJSON builds a JSON POST request.
func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message.
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
