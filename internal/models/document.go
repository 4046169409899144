package models

import "time"

// Document is an uploaded file subject to approval.
type Document struct {
	ID          string    `db:"id" json:"id"`
	Filename    string    `db:"filename" json:"filename"`
	MimeType    string    `db:"mime_type" json:"mimeType"`
	SizeBytes   int64     `db:"size_bytes" json:"sizeBytes"`
	StoragePath string    `db:"storage_path" json:"-"`
	Checksum    string    `db:"checksum" json:"checksum"`
	UploadedBy  string    `db:"uploaded_by" json:"uploadedBy"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploadedAt"`
}
