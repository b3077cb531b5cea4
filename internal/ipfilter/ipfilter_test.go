package ipfilter

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePrefixes(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    int
		wantErr bool
	}{
		{"empty", nil, 0, false},
		{"single IP", []string{"192.168.1.1"}, 1, false},
		{"CIDR", []string{"10.0.0.0/8"}, 1, false},
		{"whitespace and blanks", []string{"  192.168.1.1 ", "", " 10.0.0.0/8"}, 2, false},
		{"IPv6", []string{"::1", "2001:db8::/32"}, 2, false},
		{"invalid IP", []string{"192.168.1.1", "nope"}, 0, true},
		{"invalid CIDR", []string{"10.0.0.0/99"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrefixes(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrefixes() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFilterAllows(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		addr    string
		want    bool
	}{
		{"empty filter allows all", nil, "1.2.3.4", true},
		{"exact match", []string{"192.168.1.1"}, "192.168.1.1", true},
		{"exact no match", []string{"192.168.1.1"}, "192.168.1.2", false},
		{"CIDR contains", []string{"192.168.0.0/16"}, "192.168.1.100", true},
		{"CIDR excludes", []string{"192.168.0.0/16"}, "10.0.0.1", false},
		{"mapped IPv4", []string{"127.0.0.1"}, "::ffff:127.0.0.1", true},
		{"IPv6 CIDR", []string{"2001:db8::/32"}, "2001:db8::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.entries, newTestLogger())
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := f.Allows(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Errorf("Allows(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestFilterAllowsRemote(t *testing.T) {
	f, _ := New([]string{"192.168.1.0/24"}, newTestLogger())

	if !f.AllowsRemote("192.168.1.50:8080") {
		t.Error("host:port in range denied")
	}
	if !f.AllowsRemote("192.168.1.50") {
		t.Error("bare host in range denied")
	}
	if f.AllowsRemote("10.0.0.1:8080") {
		t.Error("host outside range allowed")
	}
	if f.AllowsRemote("garbage") {
		t.Error("unparsable remote allowed by enabled filter")
	}
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		entries    []string
		remote     string
		wantStatus int
	}{
		{"no filter", nil, "1.2.3.4:1", http.StatusOK},
		{"allowed", []string{"192.168.0.0/16"}, "192.168.1.100:1", http.StatusOK},
		{"denied", []string{"192.168.0.0/16"}, "10.0.0.1:1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := New(tt.entries, newTestLogger())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote

			rr := httptest.NewRecorder()
			f.Middleware(ok).ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	if f.Enabled() || !f.Allows(netip.MustParseAddr("10.0.0.1")) {
		t.Error("nil filter should allow everything")
	}
}
