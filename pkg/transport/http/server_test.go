package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	gohttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/transport"
)

type testServerCreator struct {
	reply *api.TalkResponse
}

func (c *testServerCreator) CreateReply(ctx context.Context, req *api.TalkRequest, w transport.ReplyWriter) error {
	return w.WriteReply(ctx, c.reply)
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return bytes.NewReader(data)
}

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	return ln, ln.Addr().String()
}

func TestServerStartsAndAcceptsRequests(t *testing.T) {
	creator := &testServerCreator{reply: &api.TalkResponse{ID: "talk_server", Reply: "pong"}}
	srv := NewServer(creator, Backends{}, WithAddr("127.0.0.1:0"))

	ln, addr := listen(t)
	go srv.ServeOn(ln)
	time.Sleep(50 * time.Millisecond)

	resp, err := gohttp.Post("http://"+addr+"/v1/talk", "application/json",
		jsonBody(t, api.TalkRequest{UID: "10001", Content: "ping"}))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}

	var got api.TalkResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.ID != "talk_server" || got.Reply != "pong" {
		t.Errorf("reply = %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func TestServerGracefulShutdown(t *testing.T) {
	slowCreator := transport.ReplyCreatorFunc(func(ctx context.Context, req *api.TalkRequest, w transport.ReplyWriter) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return w.WriteReply(ctx, &api.TalkResponse{ID: "talk_graceful", Reply: "late"})
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	srv := NewServer(slowCreator, Backends{},
		WithAddr("127.0.0.1:0"),
		WithShutdownTimeout(5*time.Second),
	)

	ln, addr := listen(t)
	go srv.ServeOn(ln)
	time.Sleep(50 * time.Millisecond)

	statusCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Post("http://"+addr+"/v1/talk", "application/json",
			jsonBody(t, api.TalkRequest{UID: "10001", Content: "slow"}))
		if err != nil {
			statusCh <- 0
			return
		}
		defer resp.Body.Close()
		statusCh <- resp.StatusCode
	}()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	if status := <-statusCh; status != gohttp.StatusOK {
		t.Errorf("slow request status = %d, want %d", status, gohttp.StatusOK)
	}
}

func TestServerShutdownCancelsStreams(t *testing.T) {
	id := api.NewTalkID()
	started := make(chan struct{})
	cancelled := make(chan struct{})

	creator := transport.ReplyCreatorFunc(func(ctx context.Context, req *api.TalkRequest, w transport.ReplyWriter) error {
		w.WriteEvent(ctx, api.TalkStreamEvent{Type: api.TalkEventCreated, ID: id})
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
			return w.WriteEvent(context.Background(), api.TalkStreamEvent{Type: api.TalkEventCancelled, ID: id})
		case <-time.After(10 * time.Second):
			return nil
		}
	})

	srv := NewServer(creator, Backends{}, WithShutdownTimeout(5*time.Second))
	ln, addr := listen(t)
	go srv.ServeOn(ln)
	time.Sleep(50 * time.Millisecond)

	go func() {
		resp, err := gohttp.Post("http://"+addr+"/v1/talk/stream", "application/json",
			jsonBody(t, api.TalkRequest{UID: "10001", Content: "stream"}))
		if err != nil {
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
	}()

	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go srv.Shutdown(ctx)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not cancel the running stream")
	}
}

func TestServerRunStopsWithContext(t *testing.T) {
	srv := NewServer(&testServerCreator{}, Backends{}, WithAddr("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestServerAuthSkipsHealthAndMetrics(t *testing.T) {
	denyAll := func(next gohttp.Handler) gohttp.Handler {
		return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
			transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required"))
		})
	}
	srv := NewServer(&testServerCreator{reply: &api.TalkResponse{}}, Backends{}, WithAuth(denyAll))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := gohttp.Post(ts.URL+"/v1/talk", "application/json",
		jsonBody(t, api.TalkRequest{UID: "10001", Content: "hi"}))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != gohttp.StatusUnauthorized {
		t.Errorf("talk status = %d, want 401", resp.StatusCode)
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := gohttp.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != gohttp.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestServerMetricsExposeRequests(t *testing.T) {
	srv := NewServer(&testServerCreator{reply: &api.TalkResponse{Reply: "ok"}}, Backends{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := gohttp.Post(ts.URL+"/v1/talk", "application/json",
		jsonBody(t, api.TalkRequest{UID: "10001", Content: "hi"}))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	resp.Body.Close()

	resp, err = gohttp.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `route="POST /v1/talk"`) {
		t.Errorf("metrics do not label the talk route:\n%s", body)
	}
}

func TestServerMetricsPathDisabled(t *testing.T) {
	srv := NewServer(&testServerCreator{}, Backends{}, WithMetricsPath(""))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := gohttp.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != gohttp.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	srv := NewServer(&testServerCreator{}, Backends{},
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithTimeouts(5*time.Second, 0),
		WithShutdownTimeout(10*time.Second),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.httpServer.ReadTimeout != 5*time.Second || srv.httpServer.WriteTimeout != 0 {
		t.Errorf("timeouts = %v/%v", srv.httpServer.ReadTimeout, srv.httpServer.WriteTimeout)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
}
