package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/assetline/internal/config"
	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.RootDir = t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.WatchOutput = false
	cfg.Watch.Debounce = 50 * time.Millisecond
	return cfg
}

func writeOutput(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	p := filepath.Join(cfg.Paths.RootDir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// startServer serves on a random port and returns its address.
func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String()
}

func dial(t *testing.T, s *Server, addr string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+addr+liveReloadPath, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://" + addr}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool { return s.hub.clientCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestStaticInjectsLiveReload(t *testing.T) {
	cfg := testConfig(t)
	writeOutput(t, cfg, "index.html", "<html><body><h1>Hi</h1></BODY></html>")
	writeOutput(t, cfg, "blog/post.html", "<p>no body tag</p>")
	writeOutput(t, cfg, "assets/css/main.css", "body{color:red}")

	ts := httptest.NewServer(New(cfg, logging.NewNopLogger(), nil).Handler())
	defer ts.Close()

	testCases := []struct {
		path        string
		contains    []string
		contentType string
	}{
		{"/", []string{"<h1>Hi</h1><script>", "</script></BODY>"}, "text/html"},
		{"/index.html", []string{liveReloadPath}, "text/html"},
		{"/blog/post.html", []string{"<p>no body tag</p><script>"}, "text/html"},
		{"/assets/css/main.css", []string{"body{color:red}"}, "text/css"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), tc.contentType)
			for _, want := range tc.contains {
				assert.Contains(t, string(body), want)
			}
		})
	}

	resp, err := http.Get(ts.URL + "/assets/css/main.css")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NotContains(t, string(body), "<script>")
}

func TestStaticMissingAndMethods(t *testing.T) {
	cfg := testConfig(t)
	ts := httptest.NewServer(New(cfg, nil, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/missing.html")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/index.html", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestInjectScript(t *testing.T) {
	out := string(injectScript([]byte("<body>a</body><body>b</body>")))
	assert.True(t, strings.HasPrefix(out, "<body>a</body><body>b<script>"))
	assert.True(t, strings.HasSuffix(out, "</script></body>"))
}

func TestNotifyMessages(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, logging.NewNopLogger(), nil)
	addr := startServer(t, s)
	conn := dial(t, s, addr)

	cssFile := filepath.Join(cfg.Paths.RootDir, "assets", "css", "main.css")
	s.Notify(context.Background(), cssFile, cssFile+".map")
	msg := readMessage(t, conn)
	assert.Equal(t, MessageCSS, msg.Type)
	assert.Equal(t, "/assets/css/main.css", msg.Target)

	s.Notify(context.Background(), cssFile, filepath.Join(cfg.Paths.RootDir, "index.html"))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageReload, msg.Type)

	s.Notify(context.Background(), "/elsewhere/other.css")
	msg = readMessage(t, conn)
	assert.Equal(t, MessageReload, msg.Type, "css outside the root cannot be swapped")

	be := errors.NewBuildError("style", "src/main.scss", stderrors.New("expected }"))
	s.ReportBuildError(*be)
	msg = readMessage(t, conn)
	assert.Equal(t, MessageBuildError, msg.Type)
	assert.Equal(t, "src/main.scss", msg.Target)
	assert.Contains(t, msg.Content, "expected }")
}

func TestLiveReloadRejectsForeignOrigin(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, nil, nil)
	addr := startServer(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, origin := range []string{"", "http://evil.example", "file://" + addr} {
		header := http.Header{}
		if origin != "" {
			header.Set("Origin", origin)
		}
		_, resp, err := websocket.Dial(ctx, "ws://"+addr+liveReloadPath, &websocket.DialOptions{HTTPHeader: header})
		assert.Error(t, err, "origin %q", origin)
		if resp != nil {
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		}
	}
}

func TestOutputWatchReloads(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.WatchOutput = true
	s := New(cfg, logging.NewNopLogger(), nil)
	addr := startServer(t, s)
	conn := dial(t, s, addr)

	writeOutput(t, cfg, "fresh.html", "<p>new</p>")
	msg := readMessage(t, conn)
	assert.Equal(t, MessageReload, msg.Type)
}

func TestHealth(t *testing.T) {
	cfg := testConfig(t)
	collector := errors.NewErrorCollector()
	s := New(cfg, nil, collector)
	s.SetStats(func() interface{} {
		return map[string]int{"style": 2}
	})
	addr := startServer(t, s)

	get := func() map[string]interface{} {
		resp, err := http.Get("http://" + addr + healthPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	body := get()
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["clients"])
	assert.Equal(t, map[string]interface{}{"style": float64(2)}, body["pipelines"])

	collector.Add(*errors.NewBuildError("script", "a.js", stderrors.New("bad")))
	body = get()
	assert.Equal(t, "degraded", body["status"])
	assert.EqualValues(t, 1, body["build_errors"])

	resp, err := http.Post("http://"+addr+healthPath, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
