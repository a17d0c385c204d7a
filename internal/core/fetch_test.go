package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestIsPublicAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:4700::6810:85e5", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.9", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fc00::1", false},
		{"0.0.0.0", false},
		{"::", false},
		{"100.100.100.200", false},
		{"::ffff:127.0.0.1", false},
		{"224.0.0.251", false},
		{"ff02::1", false},
	}
	for _, tt := range tests {
		if got := isPublicAddr(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("isPublicAddr(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestFetchURLRejectsLocalHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "internal admin page")
	}))
	defer srv.Close()

	studio, _ := newTestStudio(t, &fakeGenerator{})
	for _, u := range []string{srv.URL + "/admin", "http://localhost:1/", "http://[::1]:1/"} {
		_, err := studio.FetchURL(context.Background(), u)
		if !errors.Is(err, ErrForbiddenHost) || !errors.Is(err, ErrFetchFailed) {
			t.Errorf("FetchURL(%s) err = %v, want ErrForbiddenHost", u, err)
		}
	}
	if studio.State().UI().AIBusy {
		t.Error("busy flag left set")
	}
}
