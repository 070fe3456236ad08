// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "LiveKit Webhook Logger"

	// ServiceName is reported by the health endpoint.
	ServiceName = "webhook_handler"

	// DirName is the directory name used for storing application data.
	// Location: %LOCALAPPDATA%/lkhook/ (Windows) or ~/.config/lkhook/ (other)
	DirName = "lkhook"

	// ConfigFileName is the configuration file name.
	ConfigFileName = "config.json"

	// EnvFileName is the dotenv file read from the working directory at startup.
	EnvFileName = ".env"

	// DatabaseFileName is the SQLite database file name.
	DatabaseFileName = "events.sqlite"

	// SignatureHeader carries the hex HMAC-SHA256 of the request body.
	SignatureHeader = "X-LiveKit-Signature"
)
