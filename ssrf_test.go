package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBlockPrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secret internal data"))
	}))
	defer srv.Close()

	blocked := newHTTPClient(httpOptions{timeout: 5 * time.Second, blockPrivate: true}, "http")
	_, err := blocked.Get(srv.URL)
	if err == nil {
		t.Fatal("expected error fetching local URL, but got success")
	}
	if !strings.Contains(err.Error(), "blocked connection") {
		t.Errorf("expected 'blocked connection' error, got: %v", err)
	}

	open := newHTTPClient(httpOptions{timeout: 5 * time.Second}, "http")
	resp, err := open.Get(srv.URL)
	if err != nil {
		t.Fatalf("private addresses should be reachable by default: %v", err)
	}
	resp.Body.Close()
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"192.168.0.1", true},
		{"192.168.255.255", true},
		{"169.254.1.1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"172.32.0.1", false},
		{"203.0.113.1", false},
		{"2606:4700::1111", false},
	}
	for _, tt := range tests {
		if got := isPrivateIP(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestSafeDialContext_BlocksPrivate(t *testing.T) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	dial := safeDialContext(dialer)
	_, err := dial(context.Background(), "tcp", "127.0.0.1:80")
	if err == nil {
		t.Fatal("expected error dialing private IP")
	}
	if !strings.Contains(err.Error(), "blocked connection") {
		t.Errorf("expected 'blocked connection' error, got: %v", err)
	}
}

func TestSafeDialContext_InvalidAddr(t *testing.T) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	dial := safeDialContext(dialer)
	_, err := dial(context.Background(), "tcp", "not-a-valid-address")
	if err == nil {
		t.Fatal("expected error for invalid address")
	}
}
