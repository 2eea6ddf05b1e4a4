package alipan

import (
	"log/slog"
	"mime"
	"path"
	"time"
)

// Kind distinguishes files from folders.
type Kind string

// Item kinds as reported by the API's "type" field.
const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// RootFileID is the file id of every drive's top-level folder.
const RootFileID = "root"

// Timestamp validation bounds; timestamps outside this range are replaced
// with the zero time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// Item is a single file or folder entry, normalized from the API shape.
// Items are immutable once returned.
type Item struct {
	DriveID      string
	FileID       string
	ParentFileID string
	Name         string
	Kind         Kind
	MimeType     string // empty for folders
	Size         int64
	ContentHash  string
	ThumbnailURL string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFolder reports whether the item is a folder.
func (i *Item) IsFolder() bool {
	return i.Kind == KindFolder
}

// Page is one page of a listing or search.
type Page struct {
	Items      []Item
	NextMarker string
}

// DriveInfo carries the account's drive identifiers.
type DriveInfo struct {
	UserID          string
	UserName        string
	DefaultDriveID  string
	BackupDriveID   string
	ResourceDriveID string
}

// DownloadURL is a signed, time-limited URL for one file's content.
type DownloadURL struct {
	URL        string
	Expiration time.Time
	Size       int64
}

// UploadTarget is returned when a file is created: the server-issued upload
// id and the signed URL its single part must be PUT to.
type UploadTarget struct {
	DriveID   string
	FileID    string
	FileName  string
	UploadID  string
	UploadURL string
}

// fileResponse mirrors the API's file entity JSON.
// Unexported; callers use Item via toItem() normalization.
type fileResponse struct {
	DriveID       string `json:"drive_id"`
	FileID        string `json:"file_id"`
	ParentFileID  string `json:"parent_file_id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Size          int64  `json:"size"`
	FileExtension string `json:"file_extension"`
	ContentHash   string `json:"content_hash"`
	MimeType      string `json:"mime_type"`
	Thumbnail     string `json:"thumbnail"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type listResponse struct {
	Items      []fileResponse `json:"items"`
	NextMarker string         `json:"next_marker"`
}

// toItem normalizes an API file entity into our Item type.
func (f *fileResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		DriveID:      f.DriveID,
		FileID:       f.FileID,
		ParentFileID: f.ParentFileID,
		Name:         f.Name,
		Kind:         KindFile,
		Size:         f.Size,
		ContentHash:  f.ContentHash,
		ThumbnailURL: f.Thumbnail,
	}

	if f.Type == string(KindFolder) {
		item.Kind = KindFolder
	} else {
		item.MimeType = f.MimeType
		if item.MimeType == "" {
			item.MimeType = guessMimeType(f.Name, f.FileExtension)
		}
	}

	item.CreatedAt = parseTimestamp(f.CreatedAt, "created_at", f.FileID, logger)
	item.UpdatedAt = parseTimestamp(f.UpdatedAt, "updated_at", f.FileID, logger)

	return item
}

// guessMimeType derives a MIME type from the file extension, falling back
// to application/octet-stream.
func guessMimeType(name, ext string) string {
	if ext == "" {
		ext = path.Ext(name)
	} else {
		ext = "." + ext
	}

	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}

	return "application/octet-stream"
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Missing, invalid, or out-of-range timestamps yield the zero time.
func parseTimestamp(raw, field, fileID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp",
			slog.String("field", field),
			slog.String("file_id", fileID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range",
			slog.String("field", field),
			slog.String("file_id", fileID),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t.UTC()
}
