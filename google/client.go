// Package google provides Google Sheets and Drive clients for report
// publishing.
package google

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	envEnabled     = "GOOGLE_SHEETS_ENABLED"
	envKeyFile     = "GOOGLE_SERVICE_ACCOUNT_KEY_FILE"
	envKeyJSON     = "GOOGLE_SERVICE_ACCOUNT_KEY_JSON"
	envFolder      = "GOOGLE_DRIVE_FOLDER_ID"
	defaultKeyFile = "google_service_account.json"
)

// IsEnabled returns true if report publishing to Google Sheets is enabled
func IsEnabled() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(envEnabled)))
	return val == "true" || val == "1"
}

// GetFolderID returns the Drive folder new report spreadsheets are created in.
// Empty means the service account's own drive.
func GetFolderID() string {
	return strings.TrimSpace(os.Getenv(envFolder))
}

// NewSheetsClient creates a Google Sheets API client using service account credentials.
// Returns nil, nil if Google Sheets is disabled.
func NewSheetsClient(ctx context.Context) (*sheets.Service, error) {
	opt, enabled, err := getAuthenticatedHTTPClient(ctx, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	srv, err := sheets.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return srv, nil
}

// NewDriveClient creates a Google Drive API client with the same credentials.
// Returns nil, nil if Google Sheets is disabled.
func NewDriveClient(ctx context.Context) (*drive.Service, error) {
	opt, enabled, err := getAuthenticatedHTTPClient(ctx, drive.DriveScope)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	srv, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return srv, nil
}

func getAuthenticatedHTTPClient(ctx context.Context, scopes ...string) (option.ClientOption, bool, error) {
	if !IsEnabled() {
		return nil, false, nil
	}

	credJSON, err := getCredentialsJSON()
	if err != nil {
		return nil, true, fmt.Errorf("failed to get credentials: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credJSON, scopes...)
	if err != nil {
		return nil, true, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return option.WithHTTPClient(config.Client(ctx)), true, nil
}

// getCredentialsJSON prefers inline JSON from GOOGLE_SERVICE_ACCOUNT_KEY_JSON,
// then the file named by GOOGLE_SERVICE_ACCOUNT_KEY_FILE.
func getCredentialsJSON() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv(envKeyJSON)); inline != "" {
		return []byte(inline), nil
	}

	keyFile := strings.TrimSpace(os.Getenv(envKeyFile))
	if keyFile == "" {
		keyFile = defaultKeyFile
	}

	data, err := os.ReadFile(keyFile) //nolint:gosec // path comes from deployment config
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file %s: %w", keyFile, err)
	}
	return data, nil
}
