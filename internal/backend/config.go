package backend

import (
	"fmt"

	"gradeboard/internal/config"
	gsheet "gradeboard/internal/sheets/google"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	opts := appConfig.LoaderOptions()
	return Config{
		Type:          backendType,
		DataDirectory: appConfig.DataDir,
		Sheets: gsheet.Config{
			SpreadsheetID:   appConfig.GoogleSpreadsheetID,
			Range:           appConfig.GoogleSheetRange,
			CredentialsJSON: appConfig.GoogleCredentialsJSON,
			CredentialsFile: appConfig.GoogleCredentialsFile,
			OAuthClientJSON: appConfig.GoogleOAuthClientJSON,
			OAuthClientFile: appConfig.GoogleOAuthClientFile,
			OAuthTokenJSON:  appConfig.GoogleOAuthTokenJSON,
			OAuthTokenFile:  appConfig.GoogleOAuthTokenFile,
			Options:         opts,
		},
		Options: opts,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SheetsBackend {
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if !c.Sheets.HasServiceAccount() && !c.Sheets.HasOAuth() {
			return fmt.Errorf("service account or OAuth credentials are required for sheets backend")
		}
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SheetsBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
