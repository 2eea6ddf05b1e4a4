package alipan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// API paths.
const (
	pathDriveInfo      = "/adrive/v1.0/user/getDriveInfo"
	pathGetFile        = "/adrive/v1.0/openFile/get"
	pathListFile       = "/adrive/v1.0/openFile/list"
	pathSearchFile     = "/adrive/v1.0/openFile/search"
	pathDownloadURL    = "/adrive/v1.0/openFile/getDownloadUrl"
	pathCreateFile     = "/adrive/v1.0/openFile/create"
	pathCompleteUpload = "/adrive/v1.0/openFile/complete"
	pathTrash          = "/adrive/v1.0/openFile/recyclebin/trash"
)

// Check-name modes accepted by CreateFile.
const (
	CheckNameOverwrite  = "overwrite"
	CheckNameAutoRename = "auto_rename"
	CheckNameRefuse     = "refuse"
)

// DefaultPageSize is the listing page size used when the caller passes 0.
// 100 is the maximum the open API accepts.
const DefaultPageSize = 100

// ErrNoUploadURL is returned when a create response carries no part upload URL.
var ErrNoUploadURL = errors.New("alipan: create response has no upload URL")

type fileRef struct {
	DriveID string `json:"drive_id"`
	FileID  string `json:"file_id"`
}

type listRequest struct {
	DriveID        string `json:"drive_id"`
	ParentFileID   string `json:"parent_file_id"`
	Limit          int    `json:"limit,omitempty"`
	Marker         string `json:"marker,omitempty"`
	OrderBy        string `json:"order_by,omitempty"`
	OrderDirection string `json:"order_direction,omitempty"`
}

type searchRequest struct {
	DriveID string `json:"drive_id"`
	Query   string `json:"query"`
	Limit   int    `json:"limit,omitempty"`
	OrderBy string `json:"order_by,omitempty"`
}

type driveInfoResponse struct {
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	DefaultDriveID  string `json:"default_drive_id"`
	BackupDriveID   string `json:"backup_drive_id"`
	ResourceDriveID string `json:"resource_drive_id"`
}

type downloadURLResponse struct {
	URL        string `json:"url"`
	Expiration string `json:"expiration"`
	Size       int64  `json:"size"`
}

type partInfo struct {
	PartNumber int    `json:"part_number"`
	UploadURL  string `json:"upload_url,omitempty"`
}

type createRequest struct {
	DriveID       string     `json:"drive_id"`
	ParentFileID  string     `json:"parent_file_id"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	CheckNameMode string     `json:"check_name_mode"`
	PartInfoList  []partInfo `json:"part_info_list,omitempty"`
}

type createResponse struct {
	DriveID      string     `json:"drive_id"`
	FileID       string     `json:"file_id"`
	FileName     string     `json:"file_name"`
	UploadID     string     `json:"upload_id"`
	PartInfoList []partInfo `json:"part_info_list"`
}

type completeRequest struct {
	DriveID  string `json:"drive_id"`
	FileID   string `json:"file_id"`
	UploadID string `json:"upload_id"`
}

// GetDriveInfo returns the account's drive identifiers.
func (c *Client) GetDriveInfo(ctx context.Context) (*DriveInfo, error) {
	var resp driveInfoResponse
	if err := c.Call(ctx, pathDriveInfo, struct{}{}, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched drive info",
		slog.String("backup_drive_id", resp.BackupDriveID),
		slog.String("resource_drive_id", resp.ResourceDriveID),
	)

	return &DriveInfo{
		UserID:          resp.UserID,
		UserName:        resp.Name,
		DefaultDriveID:  resp.DefaultDriveID,
		BackupDriveID:   resp.BackupDriveID,
		ResourceDriveID: resp.ResourceDriveID,
	}, nil
}

// GetFile returns one file or folder's metadata.
func (c *Client) GetFile(ctx context.Context, driveID, fileID string) (*Item, error) {
	var resp fileResponse
	if err := c.Call(ctx, pathGetFile, fileRef{DriveID: driveID, FileID: fileID}, &resp); err != nil {
		return nil, err
	}

	item := resp.toItem(c.logger)

	return &item, nil
}

// ListFiles returns one page of a folder's children. An empty marker
// requests the first page; pageSize 0 means DefaultPageSize.
func (c *Client) ListFiles(ctx context.Context, driveID, parentFileID, marker string, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	req := listRequest{
		DriveID:        driveID,
		ParentFileID:   parentFileID,
		Limit:          pageSize,
		Marker:         marker,
		OrderBy:        "name",
		OrderDirection: "ASC",
	}

	var resp listResponse
	if err := c.Call(ctx, pathListFile, req, &resp); err != nil {
		return nil, err
	}

	return c.toPage(&resp), nil
}

// SearchFiles matches names against query within one drive and returns the
// first page of results.
func (c *Client) SearchFiles(ctx context.Context, driveID, query string, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	req := searchRequest{
		DriveID: driveID,
		Query:   NameMatchQuery(query),
		Limit:   pageSize,
		OrderBy: "name ASC",
	}

	var resp listResponse
	if err := c.Call(ctx, pathSearchFile, req, &resp); err != nil {
		return nil, err
	}

	return c.toPage(&resp), nil
}

// NameMatchQuery builds the search expression for a free-text name query.
func NameMatchQuery(q string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(q)

	return `name match "` + escaped + `"`
}

func (c *Client) toPage(resp *listResponse) *Page {
	page := &Page{
		Items:      make([]Item, 0, len(resp.Items)),
		NextMarker: resp.NextMarker,
	}

	for i := range resp.Items {
		page.Items = append(page.Items, resp.Items[i].toItem(c.logger))
	}

	return page
}

// GetDownloadURL issues a signed download URL for a file. Size is taken
// from the response when present.
func (c *Client) GetDownloadURL(ctx context.Context, driveID, fileID string) (*DownloadURL, error) {
	var resp downloadURLResponse
	if err := c.Call(ctx, pathDownloadURL, fileRef{DriveID: driveID, FileID: fileID}, &resp); err != nil {
		return nil, err
	}

	out := &DownloadURL{URL: resp.URL, Size: resp.Size}

	if resp.Expiration != "" {
		if t, err := time.Parse(time.RFC3339, resp.Expiration); err == nil {
			out.Expiration = t
		}
	}

	return out, nil
}

// CreateFile creates a single-part file under parentFileID and returns the
// upload target its content must be PUT to.
func (c *Client) CreateFile(ctx context.Context, driveID, parentFileID, name, checkNameMode string) (*UploadTarget, error) {
	if parentFileID == "" {
		parentFileID = RootFileID
	}

	if checkNameMode == "" {
		checkNameMode = CheckNameOverwrite
	}

	req := createRequest{
		DriveID:       driveID,
		ParentFileID:  parentFileID,
		Name:          name,
		Type:          string(KindFile),
		CheckNameMode: checkNameMode,
		PartInfoList:  []partInfo{{PartNumber: 1}},
	}

	var resp createResponse
	if err := c.Call(ctx, pathCreateFile, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.PartInfoList) == 0 || resp.PartInfoList[0].UploadURL == "" {
		return nil, fmt.Errorf("alipan: creating %q: %w", name, ErrNoUploadURL)
	}

	c.logger.Debug("created file",
		slog.String("drive_id", driveID),
		slog.String("parent_file_id", parentFileID),
		slog.String("file_id", resp.FileID),
	)

	return &UploadTarget{
		DriveID:   resp.DriveID,
		FileID:    resp.FileID,
		FileName:  resp.FileName,
		UploadID:  resp.UploadID,
		UploadURL: resp.PartInfoList[0].UploadURL,
	}, nil
}

// CompleteUpload finalizes an upload so the file becomes visible.
func (c *Client) CompleteUpload(ctx context.Context, driveID, fileID, uploadID string) (*Item, error) {
	var resp fileResponse

	req := completeRequest{DriveID: driveID, FileID: fileID, UploadID: uploadID}
	if err := c.Call(ctx, pathCompleteUpload, req, &resp); err != nil {
		return nil, err
	}

	item := resp.toItem(c.logger)

	return &item, nil
}

// Trash moves a file or folder to the recycle bin.
func (c *Client) Trash(ctx context.Context, driveID, fileID string) error {
	return c.Call(ctx, pathTrash, fileRef{DriveID: driveID, FileID: fileID}, nil)
}
