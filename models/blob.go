package models

import "time"

// Blob 上传文件（票据）的元数据，文件内容由 BlobStore 按 Path 存储
type Blob struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	OwnerID   uint      `json:"owner_id" gorm:"index;not null"`
	Filename  string    `json:"filename" gorm:"size:255"`
	Mimetype  string    `json:"mimetype" gorm:"size:100;not null"`
	Size      int64     `json:"size"`
	Path      string    `json:"-" gorm:"size:255;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 设置表名
func (Blob) TableName() string {
	return "blobs"
}

// IsImage 是否为可直接嵌入 PDF 的图片
func (b *Blob) IsImage() bool {
	return b.Mimetype == "image/jpeg" || b.Mimetype == "image/png"
}
