package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const waybillSubDir = "waybills"

// FileStorageService 把運單 PDF 落地到本地目錄並產生可分享的連結。
// LINE 無法直接推送 PDF 附件，所以改為存檔後推連結
type FileStorageService struct {
	logger     zerolog.Logger
	uploadPath string
	baseURL    string
}

type StoredFile struct {
	URL      string
	FilePath string
	Size     int64
}

func NewFileStorageService(logger zerolog.Logger, uploadPath, baseURL string) *FileStorageService {
	return &FileStorageService{
		logger:     logger.With().Str("module", "file_storage_service").Logger(),
		uploadPath: uploadPath,
		baseURL:    baseURL,
	}
}

// InitializeUploadDirectories 建立必要的子目錄
func (fs *FileStorageService) InitializeUploadDirectories() error {
	dir := filepath.Join(fs.uploadPath, waybillSubDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("創建目錄失敗: %w", err)
	}
	return nil
}

// SaveWaybill 儲存運單 PDF，檔名帶 uuid 片段避免撞名
func (fs *FileStorageService) SaveWaybill(orderCode string, data []byte) (*StoredFile, error) {
	targetDir := filepath.Join(fs.uploadPath, waybillSubDir)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("創建目錄失敗: %w", err)
	}

	uniqueID := uuid.New().String()
	filename := fmt.Sprintf("waybill_%s_%s_%d.pdf", orderCode, uniqueID[:8], time.Now().Unix())
	filePath := filepath.Join(targetDir, filename)

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return nil, fmt.Errorf("保存文件失敗: %w", err)
	}

	relativeURL := waybillSubDir + "/" + filename
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(fs.baseURL, "/"), relativeURL)

	fs.logger.Info().
		Str("filename", filename).
		Int("size", len(data)).
		Str("url", url).
		Msg("運單已存檔")

	return &StoredFile{
		URL:      url,
		FilePath: filePath,
		Size:     int64(len(data)),
	}, nil
}
