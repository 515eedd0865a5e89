package wiki

import "time"

// Page is a wiki entry persisted in the database. Content holds the raw
// Markdown source; sanitization happens at render time so the source stays
// valid for future edits.
type Page struct {
	ID              uint   `gorm:"primarykey"`
	Name            string `gorm:"size:255;uniqueIndex:idx_pages_name;not null"`
	Content         string `gorm:"type:text;not null"`
	LastModifiedUTC time.Time
	Attachments     []Attachment `gorm:"foreignKey:PageID;constraint:OnDelete:CASCADE"`
}

// TableName defines the table name for the Page model.
func (Page) TableName() string {
	return "pages"
}

// Attachment is the metadata record for an uploaded file. The binary payload
// lives in a FileBlob row keyed by the same FileID.
type Attachment struct {
	ID              uint   `gorm:"primarykey"`
	PageID          uint   `gorm:"index;not null"`
	FileID          string `gorm:"size:64;uniqueIndex:idx_attachments_file_id;not null"`
	FileName        string `gorm:"size:512;not null"`
	MimeType        string `gorm:"size:255"`
	LastModifiedUTC time.Time
}

// TableName defines the table name for the Attachment model.
func (Attachment) TableName() string {
	return "attachments"
}

// FileBlob stores the binary content of an uploaded file.
type FileBlob struct {
	ID     uint   `gorm:"primarykey"`
	FileID string `gorm:"size:64;uniqueIndex:idx_file_blobs_file_id;not null"`
	Data   []byte `gorm:"type:blob"`
}

// TableName defines the table name for the FileBlob model.
func (FileBlob) TableName() string {
	return "file_blobs"
}

// File bundles attachment metadata with its blob content for download.
type File struct {
	FileID          string
	FileName        string
	MimeType        string
	LastModifiedUTC time.Time
	Data            []byte
}
