package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/manash/modelchat/internal/backend/hunyuan"
	"github.com/manash/modelchat/internal/backend/placeholder"
	"github.com/manash/modelchat/internal/config"
	"github.com/manash/modelchat/internal/metrics"
	"github.com/manash/modelchat/internal/preview"
	"github.com/manash/modelchat/internal/studio"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
		MaxMessageBytes: 1 << 16,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, nil)
	ph := placeholder.New(placeholder.Config{Width: 4, Height: 4})

	factory := func() (*studio.Studio, error) {
		return studio.New(studio.Config{
			Generator: ph,
			Refiner:   ph,
			Submitter: hunyuan.New(),
			Metrics:   collector,
		})
	}

	srv := New(testConfig(), factory, preview.NewSaver(),
		WithLogger(zaptest.NewLogger(t)),
		WithGatherer(reg),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func send(t *testing.T, conn *websocket.Conn, req Request) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
	return readEvent(t, conn)
}

func TestServer_InitialState(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts)

	ev := readEvent(t, conn)
	assert.Equal(t, EventState, ev.Type)
	require.NotNil(t, ev.State)
	assert.NotEmpty(t, ev.State.SessionID)
	assert.Empty(t, ev.State.Messages)
	assert.Nil(t, ev.State.Preview)
}

func TestServer_DescribeRefineSubmit(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn)

	ev := send(t, conn, Request{Type: RequestDescribe, Text: "futuristic city"})
	assert.Equal(t, EventReply, ev.Type)
	assert.True(t, ev.OK)
	require.NotNil(t, ev.Reply)
	assert.Equal(t, "Generated preview based on: futuristic city", ev.Reply.Content)
	require.NotNil(t, ev.State.Preview)
	assert.Equal(t, "placeholder", ev.State.Preview.Source)
	assert.Equal(t, "image/png", ev.State.Preview.MIMEType)
	assert.NotEmpty(t, ev.State.Preview.Data)
	assert.Len(t, ev.State.Messages, 2)

	ev = send(t, conn, Request{Type: RequestRefine, Text: "make it night-time"})
	assert.Equal(t, "Applied adjustment: make it night-time", ev.Reply.Content)
	require.Len(t, ev.State.Adjustments, 1)
	assert.Equal(t, "make it night-time", ev.State.Adjustments[0].Text)
	assert.Len(t, ev.State.Messages, 4)

	ev = send(t, conn, Request{Type: RequestSubmit})
	assert.Equal(t, EventSubmission, ev.Type)
	require.NotNil(t, ev.Submission)
	assert.True(t, ev.OK)
	assert.Equal(t, "success", ev.Submission.Status)
	assert.Equal(t, hunyuan.SubmittedMessage, ev.Submission.Message)
	assert.Regexp(t, `^HY\d{14}$`, ev.Submission.TrackingID)
	assert.True(t, ev.Submission.PreviewIncluded)
}

func TestServer_Clear(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts)
	first := readEvent(t, conn)

	send(t, conn, Request{Type: RequestDescribe, Text: "fantasy castle"})
	ev := send(t, conn, Request{Type: RequestClear})

	assert.Equal(t, EventState, ev.Type)
	assert.NotEqual(t, first.State.SessionID, ev.State.SessionID)
	assert.Empty(t, ev.State.Messages)
	assert.Empty(t, ev.State.Adjustments)
	assert.Nil(t, ev.State.Preview)
}

func TestServer_Errors(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn)

	ev := send(t, conn, Request{Type: RequestDescribe, Text: "   "})
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, ev.Error, studio.ErrEmptyPrompt.Error())

	ev = send(t, conn, Request{Type: "teleport"})
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, ev.Error, "unknown request type")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	ev = readEvent(t, conn)
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, ev.Error, "malformed request")

	// the session survives bad requests
	ev = send(t, conn, Request{Type: RequestState})
	assert.Equal(t, EventState, ev.Type)
	assert.Empty(t, ev.State.Messages)
}

func TestServer_SessionsAreIndependent(t *testing.T) {
	ts, _ := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)
	readEvent(t, a)
	readEvent(t, b)

	send(t, a, Request{Type: RequestDescribe, Text: "robot warrior"})
	ev := send(t, b, Request{Type: RequestState})

	assert.Empty(t, ev.State.Messages)
	assert.Nil(t, ev.State.Preview)
}

func TestServer_Healthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_Metrics(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts)
	readEvent(t, conn)
	send(t, conn, Request{Type: RequestDescribe, Text: "alien landscape"})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_backend_calls_total")
	assert.Contains(t, string(body), "test_sessions_active 1")
}

func TestServer_StudioFactoryError(t *testing.T) {
	srv := New(testConfig(), func() (*studio.Studio, error) {
		return nil, studio.ErrMissingBackend
	}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	srv := New(testConfig(), nil, nil, WithLogger(zaptest.NewLogger(t)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
