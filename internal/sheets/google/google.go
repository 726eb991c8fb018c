package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"gradeboard/internal/core"
	"gradeboard/internal/loader"
	applog "gradeboard/internal/log"
	ports "gradeboard/internal/sheets"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultRange covers the four result columns of the first sheet.
const DefaultRange = "Results!A:D"

// Config selects the spreadsheet range to read and the credentials used. A
// service account wins over an OAuth client and token pair.
type Config struct {
	SpreadsheetID string
	Range         string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string

	// OAuth installed-app client and the token saved by gradeboard-oauth.
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string

	Options loader.Options
}

// HasServiceAccount reports whether service account credentials are set.
func (c Config) HasServiceAccount() bool {
	return c.CredentialsJSON != "" || c.CredentialsFile != ""
}

// HasOAuth reports whether both an OAuth client and a token are set.
func (c Config) HasOAuth() bool {
	return (c.OAuthClientJSON != "" || c.OAuthClientFile != "") &&
		(c.OAuthTokenJSON != "" || c.OAuthTokenFile != "")
}

type valuesGetter interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type Client struct {
	values        valuesGetter
	spreadsheetID string
	rng           string
	opts          loader.Options
	logger        *applog.Logger
}

var (
	_ ports.TableReader = (*Client)(nil)
	_ ports.SourceNamer = (*Client)(nil)
)

// ConfigFromEnv reads GOOGLE_SPREADSHEET_ID, GOOGLE_SHEET_RANGE, the
// service account variables GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS, and the
// GOOGLE_OAUTH_CLIENT_* and GOOGLE_OAUTH_TOKEN_* pairs.
func ConfigFromEnv() Config {
	cfg := Config{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		Range:           strings.TrimSpace(os.Getenv("GOOGLE_SHEET_RANGE")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
		OAuthClientJSON: strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON")),
		OAuthClientFile: strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")),
		OAuthTokenJSON:  strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")),
		OAuthTokenFile:  strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")),
		Options:         loader.DefaultOptions(),
	}
	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return cfg
}

// New creates a Sheets client authenticated with a service account or a
// saved OAuth token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(serviceValues{svc: svc}, cfg), nil
}

func newClient(values valuesGetter, cfg Config) *Client {
	rng := cfg.Range
	if rng == "" {
		rng = DefaultRange
	}
	return &Client{
		values:        values,
		spreadsheetID: cfg.SpreadsheetID,
		rng:           rng,
		opts:          cfg.Options,
		logger:        applog.WithComponent(applog.ComponentSheets),
	}
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	auth, err := authOption(ctx, cfg)
	if err != nil {
		return nil, err
	}
	service, err := gsheet.NewService(ctx, auth, goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// authOption picks the credentials for the read-only Sheets scope.
func authOption(ctx context.Context, cfg Config) (goption.ClientOption, error) {
	switch {
	case cfg.HasServiceAccount():
		credentialsJSON, err := jsonOrFile(cfg.CredentialsJSON, cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return goption.WithCredentialsJSON(credentialsJSON), nil
	case cfg.OAuthClientJSON != "" || cfg.OAuthClientFile != "":
		return oauthOption(ctx, cfg)
	default:
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or an OAuth client and token)")
	}
}

func oauthOption(ctx context.Context, cfg Config) (goption.ClientOption, error) {
	clientJSON, err := jsonOrFile(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	oc, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	if cfg.OAuthTokenJSON == "" && cfg.OAuthTokenFile == "" {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	tokenJSON, err := jsonOrFile(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return goption.WithTokenSource(oc.TokenSource(ctx, &tok)), nil
}

func jsonOrFile(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	return os.ReadFile(path)
}

// newHTTPClientWithPooling is tuned for repeated reads against the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

type serviceValues struct {
	svc *gsheet.Service
}

func (s serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// ReadTable reads the configured range and parses it like an uploaded file.
func (c *Client) ReadTable(ctx context.Context) (core.Table, error) {
	start := time.Now()
	values, err := c.values.Get(ctx, c.spreadsheetID, c.rng)
	if err != nil {
		return core.Table{}, fmt.Errorf("read range %s: %w", c.rng, err)
	}
	t, err := parseTable(values, c.opts)
	if err != nil {
		return core.Table{}, fmt.Errorf("parse range %s: %w", c.rng, err)
	}
	c.logger.InfoContext(ctx, "Sheet range read",
		"range", c.rng,
		applog.FieldRows, t.Len(),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return t, nil
}

func (c *Client) SourceName() string {
	return fmt.Sprintf("sheets:%s/%s", c.spreadsheetID, c.rng)
}
