package api

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/ppg"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/sink"
)

const defaultRequestTimeout = 2 * time.Second

type testClient struct {
	baseURL string
	client  *http.Client
}

func newTestClient(t *testing.T, h http.Handler) *testClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testClient{
		baseURL: srv.URL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (c *testClient) do(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err, "marshal payload")
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	require.NoError(t, err, "build request")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	require.NoError(t, err, "request failed")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "read response")
	_ = resp.Body.Close()
	return resp, data
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload), "decode json: %s", body)
	return payload
}

func requireMap(t *testing.T, v any, name string) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	require.True(t, ok, "%s is not an object: %v", name, v)
	return m
}

type fixture struct {
	pipeline *ppg.Pipeline
	recorder *sink.Recorder
	buffer   *sink.Buffer
	stream   *sink.Broadcaster
	params   *ppg.ParamStore
	client   *testClient

	mu       sync.Mutex
	sessions []string
}

func (f *fixture) sessionIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		recorder: sink.NewRecorder(t.TempDir()),
		buffer:   sink.NewBuffer(8),
		stream:   sink.NewBroadcaster("initial"),
		params:   ppg.NewParamStore(ppg.DefaultParams()),
	}
	cfg := ppg.DefaultConfig()
	cfg.Sink = sink.Fanout(f.buffer, f.recorder, f.stream)
	f.pipeline = ppg.New(cfg)

	srv := NewServer(f.pipeline, f.recorder, f.params,
		WithBuffer(f.buffer),
		WithStream(f.stream),
		OnSessionChange(func(id string) {
			f.mu.Lock()
			f.sessions = append(f.sessions, id)
			f.mu.Unlock()
		}),
	)
	f.client = newTestClient(t, srv.Handler())
	t.Cleanup(func() {
		_ = f.recorder.Close()
		_ = f.stream.Close()
	})
	return f
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.client.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payload := decodeJSONMap(t, body)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, f.pipeline.SessionID(), payload["session"])
	assert.Equal(t, false, payload["recording"])
	assert.Contains(t, payload, "accelerated")
}

func TestSessionRestart(t *testing.T) {
	f := newFixture(t)
	before := f.pipeline.SessionID()
	f.buffer.PushSample(0.1, 1)
	f.buffer.PushConfidence(0.5, 1)

	resp, _ := f.client.do(t, http.MethodGet, "/session/restart", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, body := f.client.do(t, http.MethodPost, "/session/restart", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeJSONMap(t, body)
	assert.Equal(t, true, payload["success"])
	assert.NotEqual(t, before, payload["session"])
	assert.Equal(t, []string{f.pipeline.SessionID()}, f.sessionIDs())
	assert.Empty(t, f.buffer.Snapshot())
}

func TestRecordingLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.client.do(t, http.MethodPost, "/record/stop", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := f.client.do(t, http.MethodPost, "/record/start", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := requireMap(t, decodeJSONMap(t, body)["status"], "status")
	assert.Equal(t, true, status["recording"])
	assert.NotEmpty(t, status["filename"])

	resp, _ = f.client.do(t, http.MethodPost, "/record/start", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	f.recorder.PushSample(0.1, 1)
	f.recorder.PushConfidence(0.3, 1)
	require.Eventually(t, func() bool { return f.recorder.Status().RowCount == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, body = f.client.do(t, http.MethodPost, "/record/stop", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = requireMap(t, decodeJSONMap(t, body)["status"], "status")
	assert.Equal(t, false, status["recording"])
	assert.Equal(t, float64(1), status["row_count"])
}

func TestParamsUpdate(t *testing.T) {
	f := newFixture(t)

	resp, body := f.client.do(t, http.MethodGet, "/params", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mean", decodeJSONMap(t, body)["mode"])

	resp, body = f.client.do(t, http.MethodPut, "/params", map[string]any{
		"mode":  "chrom",
		"torch": true,
		"grid":  7,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeJSONMap(t, body)
	assert.Equal(t, "chrom", payload["mode"])
	assert.Equal(t, float64(3), payload["grid"], "stored values are clamped")

	p := f.params.Load()
	assert.Equal(t, ppg.ModeChrom, p.Mode)
	assert.True(t, p.Torch)
	assert.Equal(t, ppg.ChannelGreen, p.Channel, "omitted fields keep their values")

	resp, _ = f.client.do(t, http.MethodPut, "/params", map[string]any{"gain": 3})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusReportsLatestPoint(t *testing.T) {
	f := newFixture(t)

	f.buffer.PushSample(0.25, 10)
	f.buffer.PushConfidence(0.5, 10)
	f.buffer.PushConfidence(0.1, 10.5)

	resp, body := f.client.do(t, http.MethodGet, "/status?history=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeJSONMap(t, body)

	assert.Equal(t, f.pipeline.SessionID(), payload["session"])
	assert.Equal(t, float64(2), payload["frames"])
	assert.Equal(t, float64(1), payload["samples"])
	latest := requireMap(t, payload["latest"], "latest")
	assert.Nil(t, latest["sample"], "frame without a sample")
	assert.Equal(t, 0.1, latest["confidence"])
	assert.Equal(t, 10.5, latest["timestamp"])

	hist, ok := payload["history"].([]any)
	require.True(t, ok)
	require.Len(t, hist, 2)
	assert.Equal(t, 0.25, requireMap(t, hist[0], "history[0]")["sample"])
	requireMap(t, payload["recording"], "recording")
	requireMap(t, payload["params"], "params")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.client.do(t, http.MethodOptions, "/record/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:8080", resp.Header.Get("Access-Control-Allow-Origin"))
}

func openStream(t *testing.T, f *fixture, query string) (*http.Response, *bufio.Reader) {
	t.Helper()
	resp, err := http.Get(f.client.baseURL + "/stream" + query)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return f.stream.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return resp, bufio.NewReader(resp.Body)
}

func nextData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestStreamJSON(t *testing.T) {
	f := newFixture(t)
	resp, r := openStream(t, f, "")
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", resp.Header.Get("X-Content-Format"))

	require.NoError(t, f.stream.PushSample(0.25, 3))
	require.NoError(t, f.stream.PushConfidence(0.5, 3))
	require.NoError(t, f.stream.PushConfidence(0.1, 3.5))

	first := decodeJSONMap(t, []byte(nextData(t, r)))
	assert.Equal(t, 0.25, first["sample"])
	assert.Equal(t, float64(3), first["timestamp"])
	assert.Equal(t, 0.5, first["confidence"])

	second := decodeJSONMap(t, []byte(nextData(t, r)))
	assert.Nil(t, second["sample"])
	assert.Equal(t, 0.1, second["confidence"])
	assert.Equal(t, 3.5, second["timestamp"])
}

func TestStreamProtobuf(t *testing.T) {
	f := newFixture(t)
	resp, r := openStream(t, f, "?format=protobuf")
	assert.Equal(t, "application/protobuf", resp.Header.Get("X-Content-Format"))

	_, _ = f.client.do(t, http.MethodPost, "/session/restart", map[string]any{})
	require.NoError(t, f.stream.PushSample(-0.125, 7))
	require.NoError(t, f.stream.PushConfidence(0.75, 7))

	raw, err := base64.StdEncoding.DecodeString(nextData(t, r))
	require.NoError(t, err)
	msg, err := sink.UnmarshalMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, f.pipeline.SessionID(), msg.Session)
	assert.Equal(t, uint64(1), msg.Seq)
	assert.Equal(t, -0.125, msg.Value)
	assert.Equal(t, 7.0, msg.Timestamp)
	assert.Equal(t, 0.75, msg.Confidence)
}
