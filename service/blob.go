package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"expensetracker/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrBlobNotFound 文件不存在
var ErrBlobNotFound = errors.New("文件不存在")

// BlobObject 读取到的文件
type BlobObject struct {
	models.Blob
	Data []byte
}

// BlobStore 票据文件存储
type BlobStore interface {
	Put(ctx context.Context, ownerID uint, filename string, data []byte) (*models.Blob, error)
	Get(ctx context.Context, id string) (*BlobObject, error)
	Delete(ctx context.Context, id string) error
}

// LocalBlobStore 本地磁盘存储文件内容，元数据写入 blobs 表
type LocalBlobStore struct {
	db      *gorm.DB
	baseDir string
	logger  *zap.Logger
}

// NewLocalBlobStore 创建本地文件存储
func NewLocalBlobStore(db *gorm.DB, baseDir string, logger *zap.Logger) *LocalBlobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalBlobStore{db: db, baseDir: baseDir, logger: logger.Named("blob")}
}

// Put 保存文件，类型按内容识别而不信任文件名
func (s *LocalBlobStore) Put(ctx context.Context, ownerID uint, filename string, data []byte) (*models.Blob, error) {
	id := uuid.NewString()
	blob := &models.Blob{
		ID:       id,
		OwnerID:  ownerID,
		Filename: sanitizeFilename(filename),
		Mimetype: detectMimetype(data),
		Size:     int64(len(data)),
		Path:     filepath.Join(id[:2], id),
	}

	fullPath, err := s.fullPath(blob.Path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("写入文件失败: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(blob).Error; err != nil {
		_ = os.Remove(fullPath)
		return nil, fmt.Errorf("保存文件信息失败: %w", err)
	}

	s.logger.Debug("文件已保存",
		zap.String("blob_id", id),
		zap.String("mimetype", blob.Mimetype),
		zap.Int64("size", blob.Size))
	return blob, nil
}

// Get 读取文件内容和元数据
func (s *LocalBlobStore) Get(ctx context.Context, id string) (*BlobObject, error) {
	blob, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	fullPath, err := s.fullPath(blob.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return &BlobObject{Blob: *blob, Data: data}, nil
}

// Delete 删除文件和元数据；磁盘文件已不存在时仍删除元数据
func (s *LocalBlobStore) Delete(ctx context.Context, id string) error {
	blob, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	fullPath, err := s.fullPath(blob.Path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除文件失败: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&models.Blob{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("删除文件信息失败: %w", err)
	}
	return nil
}

func (s *LocalBlobStore) find(ctx context.Context, id string) (*models.Blob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBlobNotFound
	}
	var blob models.Blob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文件信息失败: %w", err)
	}
	return &blob, nil
}

// fullPath 拼接存储路径，拒绝逃逸出 baseDir 的路径
func (s *LocalBlobStore) fullPath(rel string) (string, error) {
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("解析存储目录失败: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(s.baseDir, rel))
	if err != nil {
		return "", fmt.Errorf("解析文件路径失败: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("非法的文件路径: %s", rel)
	}
	return absPath, nil
}

// detectMimetype 按内容识别类型，去掉 charset 等参数
func detectMimetype(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

const maxFilenameBytes = 255

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	// 保留末尾 255 字节（含扩展名），起点对齐到字符边界
	if len(name) > maxFilenameBytes {
		i := len(name) - maxFilenameBytes
		for i < len(name) && !utf8.RuneStart(name[i]) {
			i++
		}
		name = name[i:]
	}
	return name
}
