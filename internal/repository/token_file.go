package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/models"
)

// FileTokenStore 令牌以 JSON 数组形式保存在单个文件中
type FileTokenStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileTokenStore 创建文件令牌存储
func NewFileTokenStore(path string, logger *zap.Logger) *FileTokenStore {
	return &FileTokenStore{path: path, logger: logger}
}

// ReadAll 读取所有令牌，文件不存在时返回空列表
// 读取或解析失败时记录日志，返回空列表和错误
func (s *FileTokenStore) ReadAll(ctx context.Context) ([]models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		s.logger.Error("Error reading tokens", zap.String("path", s.path), zap.Error(err))
		return []models.TokenRecord{}, err
	}
	return records, nil
}

// Upsert 按品牌替换已有令牌，不存在则追加，然后整体写回文件
func (s *FileTokenStore) Upsert(ctx context.Context, record models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		s.logger.Error("Error writing tokens", zap.String("brand", record.Brand), zap.Error(err))
		return err
	}

	record.Brand = models.NormalizeBrand(record.Brand)
	replaced := false
	for i := range records {
		if models.NormalizeBrand(records[i].Brand) == record.Brand {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}

	if err := s.write(records); err != nil {
		s.logger.Error("Error writing tokens", zap.String("brand", record.Brand), zap.Error(err))
		return err
	}

	s.logger.Info("Tokens saved", zap.String("brand", record.Brand))
	return nil
}

func (s *FileTokenStore) read() ([]models.TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.TokenRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.TokenRecord{}, nil
	}

	var records []models.TokenRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if records == nil {
		records = []models.TokenRecord{}
	}
	return records, nil
}

// write 先写临时文件再重命名，读者不会看到写了一半的文件
func (s *FileTokenStore) write(records []models.TokenRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	return writeFileAtomic(s.path, data, 0600)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
