// Package asset keeps exactly one live image per product consistent across an
// editing session, the external store and the product row.
package asset

// Reference points at one stored image. The zero value means "no image".
type Reference struct {
	URL    string `json:"url"`
	FileID string `json:"fileId"`
}

// FromColumns builds a Reference from the nullable record columns.
func FromColumns(url, fileID *string) Reference {
	var r Reference
	if url != nil {
		r.URL = *url
	}
	if fileID != nil {
		r.FileID = *fileID
	}
	return r
}

// IsZero reports whether r holds no image.
func (r Reference) IsZero() bool {
	return r.URL == "" && r.FileID == ""
}

// Valid reports whether r is a usable reference: both fields set, both
// empty, or a URL alone. Records saved before file ids were tracked carry
// only the URL.
func (r Reference) Valid() bool {
	return r.URL != "" || r.FileID == ""
}

// Deletable reports whether the store can be asked to delete r.
func (r Reference) Deletable() bool {
	return r.FileID != ""
}

// ImagePatch is the image part of a partial record update. Both fields nil
// leaves the stored image alone; both empty strings clear it.
type ImagePatch struct {
	URL    *string
	FileID *string
}

// Omitted reports whether the patch leaves the image untouched.
func (p ImagePatch) Omitted() bool {
	return p.URL == nil && p.FileID == nil
}

// Cleared reports whether the patch clears the image.
func (p ImagePatch) Cleared() bool {
	return p.URL != nil && p.FileID != nil && *p.URL == "" && *p.FileID == ""
}

func setImage(r Reference) ImagePatch {
	url, id := r.URL, r.FileID
	return ImagePatch{URL: &url, FileID: &id}
}

func clearImage() ImagePatch {
	empty1, empty2 := "", ""
	return ImagePatch{URL: &empty1, FileID: &empty2}
}
