package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/docid"
)

// MimeTypeDirectory is reported for folders and drive roots.
const MimeTypeDirectory = "inode/directory"

// Root tags and display titles of the two drives.
const (
	RootBackup   = "backup"
	RootResource = "resource"

	TitleBackup   = "阿里云盘(备份盘)"
	TitleResource = "阿里云盘(资源盘)"
)

// Flags describe what the host may do with a document or root.
type Flags uint32

// Document and root capabilities.
const (
	FlagSupportsDelete Flags = 1 << iota
	FlagDirSupportsCreate
	FlagSupportsThumbnail
	FlagSupportsSearch
	FlagSupportsIsChild
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagSupportsDelete, "delete"},
	{FlagDirSupportsCreate, "create"},
	{FlagSupportsThumbnail, "thumbnail"},
	{FlagSupportsSearch, "search"},
	{FlagSupportsIsChild, "is-child"},
}

// Has reports whether every bit of want is set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// String lists the set flags, e.g. "create|search".
func (f Flags) String() string {
	var names []string

	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}

	return strings.Join(names, "|")
}

// MarshalText renders flags by name in JSON output.
func (f Flags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses the MarshalText form. Unknown names are an error.
func (f *Flags) UnmarshalText(text []byte) error {
	var out Flags

	for _, name := range strings.Split(string(text), "|") {
		if name == "" {
			continue
		}

		found := false

		for _, fn := range flagNames {
			if fn.name == name {
				out |= fn.flag
				found = true

				break
			}
		}

		if !found {
			return fmt.Errorf("provider: unknown flag %q", name)
		}
	}

	*f = out

	return nil
}

// Root is one entry of the roots listing.
type Root struct {
	RootID     string `json:"root_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Flags      Flags  `json:"flags"`
}

// Document is one metadata row.
type Document struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id,omitempty"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Flags        Flags     `json:"flags"`

	thumbnailURL string
}

// IsDir reports whether the document is a folder or drive root.
func (d *Document) IsDir() bool {
	return d.MimeType == MimeTypeDirectory
}

// Listing is the result of a roots or children query. When Loading is set
// the rows are incomplete and Topic will be notified once they are ready.
type Listing struct {
	Documents []Document `json:"documents,omitempty"`
	Roots     []Root     `json:"roots,omitempty"`
	Loading   bool       `json:"loading"`
	Topic     string     `json:"topic"`
}

// Drives holds the account's resolved drive identifiers.
type Drives struct {
	Backup   string
	Resource string
}

func (d Drives) resolved() bool {
	return d.Backup != "" && d.Resource != ""
}

// byRoot maps a root tag to its drive id.
func (d Drives) byRoot(rootID string) (string, bool) {
	switch rootID {
	case RootBackup:
		return d.Backup, d.Backup != ""
	case RootResource:
		return d.Resource, d.Resource != ""
	default:
		return "", false
	}
}

func (d Drives) roots() []Root {
	const flags = FlagDirSupportsCreate | FlagSupportsSearch | FlagSupportsIsChild

	return []Root{
		{RootID: RootBackup, DocumentID: d.Backup, Title: TitleBackup, Flags: flags},
		{RootID: RootResource, DocumentID: d.Resource, Title: TitleResource, Flags: flags},
	}
}

// rootDocument builds the row for a drive root.
func (d Drives) rootDocument(driveID string) Document {
	title := driveID

	switch driveID {
	case d.Backup:
		title = TitleBackup
	case d.Resource:
		title = TitleResource
	}

	return Document{
		ID:       driveID,
		Name:     title,
		MimeType: MimeTypeDirectory,
		Flags:    FlagDirSupportsCreate,
	}
}

// itemDocument builds the row for a remote item living in parentID.
func itemDocument(parentID string, item *alipan.Item) Document {
	flags := FlagSupportsDelete

	mimeType := item.MimeType
	if item.IsFolder() || mimeType == "" {
		mimeType = MimeTypeDirectory
		flags |= FlagDirSupportsCreate
	}

	if item.ThumbnailURL != "" {
		flags |= FlagSupportsThumbnail
	}

	return Document{
		ID:           docid.Child(parentID, item.FileID),
		ParentID:     parentID,
		Name:         item.Name,
		MimeType:     mimeType,
		Size:         item.Size,
		LastModified: item.UpdatedAt,
		Flags:        flags,
		thumbnailURL: item.ThumbnailURL,
	}
}

func itemDocuments(parentID string, items []alipan.Item) []Document {
	docs := make([]Document, 0, len(items))
	for i := range items {
		docs = append(docs, itemDocument(parentID, &items[i]))
	}

	return docs
}
