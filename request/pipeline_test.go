package request_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/firasghr/wreqbridge/bodystore"
	"github.com/firasghr/wreqbridge/cancel"
	"github.com/firasghr/wreqbridge/ephemeral"
	"github.com/firasghr/wreqbridge/errs"
	"github.com/firasghr/wreqbridge/metrics"
	"github.com/firasghr/wreqbridge/request"
	"github.com/firasghr/wreqbridge/session"
	"github.com/firasghr/wreqbridge/transport"
)

func newPipeline(t *testing.T) *request.Pipeline {
	t.Helper()
	sessions := session.NewRegistry()
	eph := ephemeral.NewCache()
	t.Cleanup(func() {
		sessions.Stop()
		eph.Stop()
	})
	return request.New(transport.NewRegistry(), eph, sessions, bodystore.New(), cancel.NewRegistry())
}

func TestExecute_GetInlineBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		_, _ = w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	p := newPipeline(t)
	resp, err := p.Execute(context.Background(), request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows"}, 1, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if resp.HasHandle {
		t.Error("HasHandle = true for a small body, want inline")
	}
	if string(resp.InlineBytes) != "hello world" {
		t.Errorf("InlineBytes = %q", resp.InlineBytes)
	}
	if !resp.AllowsBody {
		t.Error("AllowsBody = false, want true for a 200 GET")
	}
}

func TestExecute_StreamsLargeBody(t *testing.T) {
	large := strings.Repeat("x", bodystore.InlineBodyMax+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(large))
	}))
	defer srv.Close()

	p := newPipeline(t)
	resp, err := p.Execute(context.Background(), request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows"}, 2, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.HasHandle {
		t.Fatal("HasHandle = false, want true for a body over the inline threshold")
	}
	data, err := p.Bodies.ReadAll(resp.BodyHandle)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != large {
		t.Error("streamed body does not match what the server sent")
	}
}

func TestExecute_HeadHasNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("unreachable for HEAD"))
	}))
	defer srv.Close()

	p := newPipeline(t)
	resp, err := p.Execute(context.Background(), request.Options{URL: srv.URL, Method: http.MethodHead, Emulation: "chrome_120", OS: "windows"}, 3, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.AllowsBody {
		t.Error("AllowsBody = true for a HEAD response, want false")
	}
	if resp.HasHandle || len(resp.InlineBytes) != 0 {
		t.Error("HEAD response should carry no body bytes and no handle")
	}
}

func TestExecute_204HasNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := newPipeline(t)
	resp, err := p.Execute(context.Background(), request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows"}, 4, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.AllowsBody {
		t.Error("AllowsBody = true for 204, want false")
	}
}

func TestExecute_BadMethodRejected(t *testing.T) {
	p := newPipeline(t)
	_, err := p.Execute(context.Background(), request.Options{URL: "http://example.invalid", Method: "BAD METHOD", Emulation: "chrome_120", OS: "windows"}, 5, false)
	if err == nil {
		t.Fatal("Execute returned nil error for a method containing a space")
	}
	if errs.KindOf(err) != errs.BadMethod {
		t.Errorf("KindOf(err) = %q, want %q", errs.KindOf(err), errs.BadMethod)
	}
}

func TestExecute_UnknownTransportID(t *testing.T) {
	p := newPipeline(t)
	_, err := p.Execute(context.Background(), request.Options{URL: "http://example.invalid", TransportID: "does-not-exist", Emulation: "chrome_120", OS: "windows"}, 6, false)
	if err == nil {
		t.Fatal("Execute returned nil error for an unknown transport_id")
	}
	if errs.KindOf(err) != errs.TransportNotFound {
		t.Errorf("KindOf(err) = %q, want %q", errs.KindOf(err), errs.TransportNotFound)
	}
}

func TestExecute_SessionCookiesPersistAcrossRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("seen"); err == nil {
			_, _ = w.Write([]byte("again:" + c.Value))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "seen", Value: "yes"})
		_, _ = w.Write([]byte("first"))
	}))
	defer srv.Close()

	p := newPipeline(t)
	opts := request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows", SessionID: "sticky-session"}

	first, err := p.Execute(context.Background(), opts, 7, false)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if string(first.InlineBytes) != "first" {
		t.Fatalf("first response = %q", first.InlineBytes)
	}

	second, err := p.Execute(context.Background(), opts, 8, false)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if string(second.InlineBytes) != "again:yes" {
		t.Errorf("second response = %q, want the session jar to replay the cookie set in the first response", second.InlineBytes)
	}
}

func TestExecute_EphemeralRequestsDoNotJoinSession(t *testing.T) {
	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("seen"); err == nil {
			sawCookie = true
		}
		http.SetCookie(w, &http.Cookie{Name: "seen", Value: "yes"})
	}))
	defer srv.Close()

	p := newPipeline(t)
	opts := request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows", SessionID: "irrelevant-for-ephemeral", Ephemeral: true}

	if _, err := p.Execute(context.Background(), opts, 9, false); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := p.Execute(context.Background(), opts, 10, false); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if sawCookie {
		t.Error("an ephemeral request replayed a cookie, but ephemeral requests must never join a session jar")
	}
}

func TestExecute_RedirectManualStopsAtFirstHop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("should not be reached"))
	}))
	defer srv.Close()

	p := newPipeline(t)
	resp, err := p.Execute(context.Background(), request.Options{URL: srv.URL + "/start", Emulation: "chrome_120", OS: "windows", Redirect: request.RedirectManual}, 11, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != http.StatusFound {
		t.Errorf("Status = %d, want 302 (redirect not followed)", resp.Status)
	}
}

func TestExecute_RedirectErrorFailsOnRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	}))
	defer srv.Close()

	p := newPipeline(t)
	_, err := p.Execute(context.Background(), request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows", Redirect: request.RedirectError}, 12, false)
	if err == nil {
		t.Fatal("Execute returned nil error, want redirect-disabled")
	}
}

func TestExecute_CancellationAbortsRequest(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	p := newPipeline(t)
	done := make(chan error, 1)
	go func() {
		_, err := p.Execute(context.Background(), request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows"}, 42, true)
		done <- err
	}()

	// Give Execute a moment to register its cancel token before cancelling.
	for i := 0; i < 1000 && !p.Cancels.Cancel(42); i++ {
	}

	err := <-done
	if err == nil {
		t.Fatal("Execute returned nil error for a cancelled request")
	}
	if errs.KindOf(err) != errs.RequestAborted {
		t.Errorf("KindOf(err) = %q, want %q", errs.KindOf(err), errs.RequestAborted)
	}
}

func TestExecute_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := newPipeline(t)
	p.Metrics = metrics.NewMetrics()

	if _, err := p.Execute(context.Background(), request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows"}, 100, false); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	total, failed, inline, streamed := p.Metrics.Snapshot()
	if total != 1 {
		t.Errorf("TotalRequests = %d, want 1", total)
	}
	if inline != 1 {
		t.Errorf("InlineResponses = %d, want 1", inline)
	}
	if failed != 0 || streamed != 0 {
		t.Errorf("Failed = %d, StreamedResponses = %d, want both 0", failed, streamed)
	}
}

func TestExecute_RecordsMetrics_Failure(t *testing.T) {
	p := newPipeline(t)
	p.Metrics = metrics.NewMetrics()

	if _, err := p.Execute(context.Background(), request.Options{URL: "http://127.0.0.1:0", Emulation: "chrome_120", OS: "windows"}, 101, false); err == nil {
		t.Fatal("Execute returned nil error for an unreachable address")
	}

	total, failed, _, _ := p.Metrics.Snapshot()
	if total != 1 {
		t.Errorf("TotalRequests = %d, want 1", total)
	}
	if failed != 1 {
		t.Errorf("Failed = %d, want 1", failed)
	}
}

func TestExecute_RecordsMetrics_Cancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	p := newPipeline(t)
	p.Metrics = metrics.NewMetrics()

	done := make(chan error, 1)
	go func() {
		_, err := p.Execute(context.Background(), request.Options{URL: srv.URL, Emulation: "chrome_120", OS: "windows"}, 102, true)
		done <- err
	}()

	for i := 0; i < 1000 && !p.Cancels.Cancel(102); i++ {
	}
	if err := <-done; err == nil {
		t.Fatal("Execute returned nil error for a cancelled request")
	}

	total, _, _, _ := p.Metrics.Snapshot()
	if total != 1 {
		t.Errorf("TotalRequests = %d, want 1", total)
	}
	cancelled := p.Metrics.CancelledRequests
	if cancelled != 1 {
		t.Errorf("CancelledRequests = %d, want 1", cancelled)
	}
}

func TestExecute_DisableDefaultHeadersOmitsProfileHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	p := newPipeline(t)
	_, err := p.Execute(context.Background(), request.Options{
		URL: srv.URL, Emulation: "chrome_120", OS: "windows", DisableDefaultHeaders: true,
	}, 13, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotUA != "" {
		t.Errorf("User-Agent = %q, want empty (disable_default_headers should suppress the emulation profile's headers)", gotUA)
	}
}
