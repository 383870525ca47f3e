package models

import "gorm.io/gorm"

// ScormPackage represents one ingested e-learning content package
type ScormPackage struct {
	gorm.Model
	PackageID    string `json:"package_id" gorm:"uniqueIndex;not null"` // stable public identifier (uuid)
	Title        string `json:"title"`
	Description  string `json:"description"`
	Version      string `json:"version" gorm:"default:'1.2'"` // canonical dialect: 1.2 or 2004
	ContentPath  string `json:"content_path"`                 // blob key under the content dir, immutable after ingestion
	LaunchPath   string `json:"launch_path"`                  // primary SCO href, relative to ContentPath
	ManifestJSON string `json:"-" gorm:"type:text"`           // parsed manifest, encoded at the storage boundary
	FileSize     int64  `json:"file_size" gorm:"default:0"`
	FileHash     string `json:"file_hash"` // sha256 of the uploaded archive
	OwnerID      uint   `json:"owner_id" gorm:"index"`
	IsActive     bool   `json:"is_active" gorm:"default:true"`
	IsDeleted    bool   `gorm:"default:false"`
}
