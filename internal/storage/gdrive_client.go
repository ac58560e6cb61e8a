package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// ErrNoToken means no cached OAuth token exists and the interactive flow is off
var ErrNoToken = errors.New("no cached Google Drive token")

// DriveConfig locates the OAuth files and the root folder
type DriveConfig struct {
	CredentialsFile string
	TokenFile       string
	FolderName      string
	// Interactive allows asking for an authorization code on stdin when no
	// token is cached. Servers leave it off.
	Interactive bool
}

// DriveClient handles uploading to Google Drive
type DriveClient struct {
	service  *drive.Service
	folderID string
	now      func() time.Time
}

// NewDriveClient creates a Drive client and finds or creates the root folder
func NewDriveClient(ctx context.Context, cfg DriveConfig) (*DriveClient, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	client, err := getClient(ctx, config, cfg)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create Drive service: %w", err)
	}

	dc := &DriveClient{service: srv, now: time.Now}
	if dc.folderID, err = dc.findOrCreateFolder(ctx, cfg.FolderName, ""); err != nil {
		return nil, fmt.Errorf("root folder %q: %w", cfg.FolderName, err)
	}
	return dc, nil
}

// getClient uses the cached token, or runs the console flow when allowed
func getClient(ctx context.Context, config *oauth2.Config, cfg DriveConfig) (*http.Client, error) {
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		if !cfg.Interactive {
			return nil, fmt.Errorf("%w: %s", ErrNoToken, cfg.TokenFile)
		}
		if tok, err = getTokenFromWeb(ctx, config); err != nil {
			return nil, err
		}
		if err := saveToken(cfg.TokenFile, tok); err != nil {
			return nil, err
		}
	}
	return config.Client(ctx, tok), nil
}

// getTokenFromWeb requests a token from the web
func getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser:\n%v\n", authURL)
	fmt.Print("Enter authorization code: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Upload stores an artifact and its metadata sidecar under
// <root>/YYYY/MM/DD and returns a link to the artifact.
func (dc *DriveClient) Upload(ctx context.Context, name, format string, content io.Reader, meta any) (string, error) {
	now := dc.now()
	folderID, err := dc.ensureDateFolder(ctx, now)
	if err != nil {
		return "", err
	}

	baseFilename := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), sanitizeFilename(name))

	created, err := dc.service.Files.Create(&drive.File{
		Name:    baseFilename + "." + format,
		Parents: []string{folderID},
	}).Media(content).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload transcript: %w", err)
	}

	if meta != nil {
		metaJSON, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = dc.service.Files.Create(&drive.File{
			Name:    baseFilename + "_meta.json",
			Parents: []string{folderID},
		}).Media(bytes.NewReader(metaJSON)).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("upload metadata: %w", err)
		}
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// ensureDateFolder creates nested year/month/day folders
func (dc *DriveClient) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	parent := dc.folderID
	for _, name := range []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	} {
		id, err := dc.findOrCreateFolder(ctx, name, parent)
		if err != nil {
			return "", fmt.Errorf("folder %s: %w", name, err)
		}
		parent = id
	}
	return parent, nil
}

// findOrCreateFolder finds or creates a folder; an empty parentID means My Drive
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := folderQuery(name, parentID)

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

func folderQuery(name, parentID string) string {
	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), folderMimeType)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}
	return q
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
