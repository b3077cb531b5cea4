package app

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/campaignctl/internal/campaign"
	"github.com/foxzi/campaignctl/internal/config"
	"github.com/foxzi/campaignctl/internal/transport/transporttest"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Remote:      config.RemoteConfig{BaseURL: baseURL, Timeout: 5 * time.Second},
		Credentials: config.CredentialsConfig{StorePath: filepath.Join(t.TempDir(), "credentials.db")},
		Logging:     config.LoggingConfig{Level: "error", Format: "text"},
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewUsesStoredToken(t *testing.T) {
	remote := transporttest.NewServer("stored")
	defer remote.Close()
	remote.Put(&campaign.Campaign{ID: "c1", State: campaign.StatePaused})

	a, err := New(testConfig(t, remote.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if err := a.Store().Save(context.Background(), "stored"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s, err := a.Sessions().Open("c1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := s.Load(context.Background(), false); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestNewStaticTokenWins(t *testing.T) {
	remote := transporttest.NewServer("static")
	defer remote.Close()
	remote.Put(&campaign.Campaign{ID: "c1", State: campaign.StateProcessing})

	cfg := testConfig(t, remote.URL)
	cfg.Credentials.Token = "static"
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	s, _ := a.Sessions().Open("c1")
	if _, err := s.Load(context.Background(), false); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestNewInvalidAllowedIPs(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.API.Enabled = true
	cfg.API.AllowedIPs = []string{"not-an-ip"}

	if _, err := New(cfg); err == nil {
		t.Fatal("New() expected error")
	}
}

func TestRunOpensCampaigns(t *testing.T) {
	remote := transporttest.NewServer("static")
	defer remote.Close()
	remote.Put(&campaign.Campaign{ID: "c1", State: campaign.StateProcessing})

	cfg := testConfig(t, remote.URL)
	cfg.Credentials.Token = "static"
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := a.Run(ctx, "c1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := remote.FetchCount("c1"); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if ids := a.Sessions().IDs(); len(ids) != 0 {
		t.Errorf("sessions after shutdown = %v", ids)
	}
}
