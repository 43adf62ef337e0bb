package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"10.0.0.5:5001", Address{ModeTCP, "10.0.0.5:5001"}, false},
		{"tcp:host:5001", Address{ModeTCP, "host:5001"}, false},
		{" unix:/run/p.sock ", Address{ModeUnix, "/run/p.sock"}, false},
		{"unix:", Address{}, true},
		{"", Address{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAddress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStaticDiscoverer(t *testing.T) {
	d, err := NewStaticDiscoverer([]string{"a:1", "unix:/tmp/b.sock"})
	if err != nil {
		t.Fatalf("NewStaticDiscoverer() error = %v", err)
	}
	got, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 || got[0].Mode != ModeTCP || got[1].Mode != ModeUnix {
		t.Errorf("Discover() = %v, want tcp then unix", got)
	}

	if _, err := NewStaticDiscoverer([]string{""}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("NewStaticDiscoverer(empty) error = %v, want ErrInvalidAddress", err)
	}
}

func shortTempDir(t *testing.T) string {
	t.Helper()
	// Unix socket paths are limited to ~108 bytes.
	dir, err := os.MkdirTemp("", "gw")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestSocketDirDiscoverer(t *testing.T) {
	dir := shortTempDir(t)
	for _, name := range []string{"b.sock", "a.sock"} {
		l, err := net.Listen("unix", filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Listen() error = %v", err)
		}
		t.Cleanup(func() { l.Close() })
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := NewSocketDirDiscoverer(dir).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Discover() = %v, want 2 sockets", got)
	}
	if got[0].Address != filepath.Join(dir, "a.sock") || got[0].Mode != ModeUnix {
		t.Errorf("Discover()[0] = %v, want a.sock over unix", got[0])
	}
}

func TestSocketDirDiscoverer_MissingDir(t *testing.T) {
	got, err := NewSocketDirDiscoverer("/nonexistent/gateway/plugins").Discover(context.Background())
	if err != nil {
		t.Errorf("Discover() error = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Errorf("Discover() = %v, want none", got)
	}
}

func TestClusterDiscoverer(t *testing.T) {
	var gotSelector, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSelector = r.URL.Query().Get("labelSelector")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"metadata":{"name":"emulator"},"subsets":[
			{"addresses":[{"ip":"10.1.0.4"},{"ip":"10.1.0.5"}],
			 "ports":[{"name":"metrics","port":9090},{"name":"http","port":5001}]}]}]}`))
	}))
	defer srv.Close()

	d := NewClusterDiscoverer(ClusterConfig{
		Endpoint:      srv.URL + "/api/v1/endpoints",
		LabelSelector: "app=plugin",
		PortName:      "http",
		Token:         "tok",
	})
	got, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if gotSelector != "app=plugin" {
		t.Errorf("labelSelector = %q, want app=plugin", gotSelector)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	want := []Address{{ModeTCP, "10.1.0.4:5001"}, {ModeTCP, "10.1.0.5:5001"}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestClusterDiscoverer_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClusterDiscoverer(ClusterConfig{Endpoint: srv.URL}).Discover(context.Background())
	if !errors.Is(err, ErrDiscovery) {
		t.Errorf("Discover() error = %v, want ErrDiscovery", err)
	}
}

type fakeSubscriber struct {
	topic   string
	handler MessageHandler
	err     error
	calls   int
}

func (s *fakeSubscriber) Subscribe(topic string, _ byte, handler MessageHandler) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.topic = topic
	s.handler = handler
	return nil
}

func TestAnnouncementDiscoverer(t *testing.T) {
	sub := &fakeSubscriber{}
	d := NewAnnouncementDiscoverer(sub, "graylogic/gateway/announce/+", 1)

	got, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 0 || sub.topic != "graylogic/gateway/announce/+" {
		t.Fatalf("Discover() = %v topic %q, want empty and subscribed", got, sub.topic)
	}

	announce := func(topic string, a Announcement) {
		t.Helper()
		payload, _ := json.Marshal(a)
		if err := sub.handler(topic, payload); err != nil {
			t.Fatalf("handler() error = %v", err)
		}
	}
	announce("graylogic/gateway/announce/b", Announcement{Mode: ModeUnix, Address: "/run/b.sock"})
	announce("graylogic/gateway/announce/a", Announcement{Address: "10.0.0.1:5001"})

	got, _ = d.Discover(context.Background())
	if len(got) != 2 || got[0] != (Address{ModeTCP, "10.0.0.1:5001"}) {
		t.Errorf("Discover() = %v, want a (tcp default) then b", got)
	}

	// Empty payload withdraws.
	if err := sub.handler("graylogic/gateway/announce/a", nil); err != nil {
		t.Fatalf("handler(withdraw) error = %v", err)
	}
	got, _ = d.Discover(context.Background())
	if len(got) != 1 || got[0].Address != "/run/b.sock" {
		t.Errorf("Discover() after withdraw = %v, want only b", got)
	}

	if err := sub.handler("graylogic/gateway/announce/c", []byte("{bad")); err == nil {
		t.Error("handler(malformed) expected error")
	}
	if sub.calls != 1 {
		t.Errorf("Subscribe calls = %d, want 1", sub.calls)
	}
}

func TestAnnouncementDiscoverer_SubscribeFailure(t *testing.T) {
	sub := &fakeSubscriber{err: errors.New("not connected")}
	d := NewAnnouncementDiscoverer(sub, "t/+", 0)
	if _, err := d.Discover(context.Background()); !errors.Is(err, ErrDiscovery) {
		t.Errorf("Discover() error = %v, want ErrDiscovery", err)
	}
}
