package google

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestIsEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"false", false},
		{"true", true},
		{"TRUE", true},
		{" 1 ", true},
		{"yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("GOOGLE_SHEETS_ENABLED", tt.value)
			if got := IsEnabled(); got != tt.want {
				t.Errorf("IsEnabled() with %q = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestClients_Disabled(t *testing.T) {
	t.Setenv("GOOGLE_SHEETS_ENABLED", "")

	sheetsClient, err := NewSheetsClient(context.Background())
	if err != nil || sheetsClient != nil {
		t.Errorf("NewSheetsClient() = %v, %v; want nil, nil when disabled", sheetsClient, err)
	}
	driveClient, err := NewDriveClient(context.Background())
	if err != nil || driveClient != nil {
		t.Errorf("NewDriveClient() = %v, %v; want nil, nil when disabled", driveClient, err)
	}
}

func TestClients_EnabledButNoCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SHEETS_ENABLED", "true")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_KEY_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_KEY_FILE", "/nonexistent/path/to/credentials.json")

	if _, err := NewSheetsClient(context.Background()); err == nil {
		t.Error("Expected error when enabled but no credentials provided")
	}
	if _, err := NewDriveClient(context.Background()); err == nil {
		t.Error("Expected error when enabled but no credentials provided")
	}
}

func TestClients_InvalidJSON(t *testing.T) {
	t.Setenv("GOOGLE_SHEETS_ENABLED", "true")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_KEY_JSON", "not valid json")

	if _, err := NewSheetsClient(context.Background()); err == nil {
		t.Error("Expected error for invalid JSON credentials")
	}
}

func TestGetCredentialsJSON_PrefersInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_KEY_FILE", path)

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_KEY_JSON", `{"from":"env"}`)
	got, err := getCredentialsJSON()
	if err != nil || string(got) != `{"from":"env"}` {
		t.Errorf("getCredentialsJSON() = %s, %v", got, err)
	}

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_KEY_JSON", "")
	got, err = getCredentialsJSON()
	if err != nil || string(got) != `{"from":"file"}` {
		t.Errorf("getCredentialsJSON() = %s, %v", got, err)
	}
}
