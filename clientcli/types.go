package clientcli

import (
	"time"
)

// Share is the share metadata returned by the server.
type Share struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UploadOptions configures an upload operation.
type UploadOptions struct {
	LocalPath string
	Name      string // optional, defaults to the base name of LocalPath
	Recursive bool
}

// UploadResult represents the result of uploading a single file.
type UploadResult struct {
	LocalPath string `json:"local_path"`
	Share
	Err error `json:"-"` // nil on success
}

// DownloadOptions configures a download operation.
type DownloadOptions struct {
	Code      string
	LocalPath string // empty = server filename, "-" = stdout
}

// DownloadResult represents the result of downloading a share.
type DownloadResult struct {
	Code      string `json:"code"`
	Filename  string `json:"filename"`
	LocalPath string `json:"local_path"`
	Size      int64  `json:"size"`
}
