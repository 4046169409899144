package models

import (
	"time"

	"github.com/lib/pq"
)

// FileType is a catalog entry that permissions are granted against.
type FileType struct {
	ID         string         `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	Mime       string         `db:"mime" json:"mime"`
	Extensions pq.StringArray `db:"extensions" json:"extensions"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// FileTypePermission grants a user the right to approve documents of a file type.
type FileTypePermission struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"userId"`
	FileTypeID string    `db:"file_type_id" json:"fileTypeId"`
	GrantedBy  *string   `db:"granted_by" json:"grantedBy,omitempty"`
	GrantedAt  time.Time `db:"granted_at" json:"grantedAt"`
}

// UserFileTypePermission joins a grant with its catalog entry for listings.
type UserFileTypePermission struct {
	FileTypePermission
	FileTypeName string `db:"file_type_name" json:"fileTypeName"`
	FileTypeMime string `db:"file_type_mime" json:"fileTypeMime"`
}
