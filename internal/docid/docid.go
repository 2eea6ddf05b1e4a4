// Package docid encodes remote drive/file identity into the opaque,
// path-style document ids handed to the host document tree.
//
// A document id is the drive identifier followed by the chain of remote
// file ids from the drive's top folder down to the item:
//
//	<driveID>                     drive root
//	<driveID>/<fileID>            item in the drive's top folder
//	<driveID>/<fileID>/<fileID>   nested item
//
// The codec is total: any string decodes to some Parts value, and the
// empty string and the literal "null" both mean "no document".
//
// This is a leaf package with zero external dependencies beyond stdlib.
package docid

import "strings"

// Separator joins the components of a document id. Remote ids never
// contain it.
const Separator = "/"

// nullID is what hosts pass for an absent parent.
const nullID = "null"

// rootFileID is the remote file id of every drive's top-level folder.
const rootFileID = "root"

// Parts is a decoded document id. ParentID is the parent's own document id
// (empty for drive roots). FileID is empty for drive roots.
type Parts struct {
	DriveID  string
	ParentID string
	FileID   string
}

// Encode builds a document id. An empty fileID yields the drive root id;
// an empty or "null" parentID means the item lives in the drive's top
// folder.
func Encode(driveID, parentID, fileID string) string {
	if fileID == "" {
		return driveID
	}

	if parentID == "" || parentID == nullID {
		parentID = driveID
	}

	return parentID + Separator + fileID
}

// Child returns the document id of fileID inside the folder parentID.
func Child(parentID, fileID string) string {
	p := Decode(parentID)

	return Encode(p.DriveID, parentID, fileID)
}

// Decode splits a document id into its parts. It never fails: "" and
// "null" decode to the zero Parts, a bare drive id decodes to a root, and
// stray leading or trailing separators are ignored.
func Decode(id string) Parts {
	id = strings.Trim(id, Separator)
	if id == "" || id == nullID {
		return Parts{}
	}

	i := strings.LastIndex(id, Separator)
	if i < 0 {
		return Parts{DriveID: id}
	}

	driveID, _, _ := strings.Cut(id, Separator)

	return Parts{
		DriveID:  driveID,
		ParentID: id[:i],
		FileID:   id[i+len(Separator):],
	}
}

// IsZero reports whether p names no document.
func (p Parts) IsZero() bool {
	return p.DriveID == ""
}

// IsRoot reports whether p names a drive root.
func (p Parts) IsRoot() bool {
	return p.DriveID != "" && p.FileID == ""
}

// RemoteFileID returns the remote file id to use in API calls, mapping a
// drive root to the service's "root" folder id.
func (p Parts) RemoteFileID() string {
	if p.FileID == "" {
		return rootFileID
	}

	return p.FileID
}

// String re-encodes p.
func (p Parts) String() string {
	return Encode(p.DriveID, p.ParentID, p.FileID)
}

// Parent returns the document id of id's parent, or "" for roots and
// invalid ids.
func Parent(id string) string {
	return Decode(id).ParentID
}

// SameDrive reports whether two document ids belong to the same drive.
// Used as the containment test for the host's is-child query.
func SameDrive(a, b string) bool {
	da := Decode(a).DriveID

	return da != "" && da == Decode(b).DriveID
}
