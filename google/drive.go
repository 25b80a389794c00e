package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// ErrSpreadsheetNotFound is returned when no spreadsheet has the requested title.
var ErrSpreadsheetNotFound = errors.New("spreadsheet not found")

// IsNotFound reports whether err is a Google API 404, as returned for a
// spreadsheet that was deleted or that the service account lost access to.
func IsNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// Grant is one share entry applied to a newly created spreadsheet.
type Grant struct {
	Email  string `yaml:"email"`
	Role   string `yaml:"role"`
	Notify bool   `yaml:"notify"`
}

// Drive finds, creates and shares report spreadsheets.
type Drive struct {
	srv      *drive.Service
	folderID string
}

// NewDrive wraps a Drive service. folderID may be empty.
func NewDrive(srv *drive.Service, folderID string) *Drive {
	return &Drive{srv: srv, folderID: folderID}
}

// FindSpreadsheet returns the id of the first non-trashed spreadsheet with
// exactly this title, or ErrSpreadsheetNotFound.
func (d *Drive) FindSpreadsheet(ctx context.Context, title string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(title), spreadsheetMimeType)
	if d.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(d.folderID))
	}

	list, err := d.srv.Files.List().
		Q(q).
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to search for spreadsheet %q: %w", title, err)
	}

	for _, f := range list.Files {
		if f.Name == title {
			return f.Id, nil
		}
	}
	return "", ErrSpreadsheetNotFound
}

// CreateSpreadsheet creates a new spreadsheet in the configured folder.
// The folder must be shared with the service account (Editor access).
func (d *Drive) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	file := &drive.File{
		Name:     title,
		MimeType: spreadsheetMimeType,
	}
	if d.folderID != "" {
		file.Parents = []string{d.folderID}
	}

	created, err := d.srv.Files.Create(file).
		SupportsAllDrives(true). // Required for Shared Drives
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to create spreadsheet %q: %w", title, err)
	}
	return created.Id, nil
}

// ShareSpreadsheet grants a user access to a spreadsheet.
func (d *Drive) ShareSpreadsheet(ctx context.Context, spreadsheetID string, g Grant) error {
	if err := validateShareRole(g.Role); err != nil {
		return err
	}
	if strings.TrimSpace(g.Email) == "" {
		return fmt.Errorf("share grant has no email")
	}

	perm := &drive.Permission{
		Type:         "user",
		Role:         g.Role,
		EmailAddress: g.Email,
	}
	_, err := d.srv.Permissions.Create(spreadsheetID, perm).
		SendNotificationEmail(g.Notify).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to share spreadsheet with %s: %w", g.Email, err)
	}
	return nil
}

func validateShareRole(role string) error {
	switch role {
	case "reader", "commenter", "writer", "owner":
		return nil
	default:
		return fmt.Errorf("invalid share role %q", role)
	}
}

// escapeQuery escapes a value for a single-quoted Drive query literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// FormatSpreadsheetURL returns the edit URL for a Google Sheets spreadsheet.
func FormatSpreadsheetURL(spreadsheetID string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", spreadsheetID)
}
