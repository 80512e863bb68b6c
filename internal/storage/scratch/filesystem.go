// Package scratch 管理任務暫存區：每個任務以 Job ID 建立獨立子目錄，
// 存放上傳的原始容器、提取出的媒體、渲染後的 PDF 與最終報告。
package scratch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"DeckScope-admin/internal/config"
)

// FileSystemScratch 結構負責與本地檔案系統互動
type FileSystemScratch struct {
	basePath string // 從設定檔讀取的暫存根路徑
}

// NewFileSystemScratch 建立一個 FileSystemScratch 實例。
// 會檢查 basePath 是否存在，如果不存在則嘗試建立它。
func NewFileSystemScratch(cfg config.ScratchConfig) (*FileSystemScratch, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("暫存區設定中的 basePath 不得為空")
	}

	absBasePath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("無法取得暫存區 basePath 的絕對路徑 '%s': %w", cfg.BasePath, err)
	}

	if _, err := os.Stat(absBasePath); os.IsNotExist(err) {
		log.Printf("資訊：暫存根目錄 '%s' 不存在，正在嘗試建立...", absBasePath)
		if err := os.MkdirAll(absBasePath, 0o755); err != nil {
			return nil, fmt.Errorf("無法建立暫存根目錄 '%s': %w", absBasePath, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("檢查暫存根目錄 '%s' 時發生錯誤: %w", absBasePath, err)
	}

	log.Printf("資訊：FileSystemScratch 初始化成功，暫存根路徑設定為: %s", absBasePath)
	return &FileSystemScratch{basePath: absBasePath}, nil
}

// JobDir 回傳（必要時建立）指定任務的暫存目錄。
// 目錄以 Job ID 命名，確保多個任務並行執行時互不碰撞。
func (fs *FileSystemScratch) JobDir(jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("JobDir 參數 jobID 不得為空")
	}
	dir := filepath.Join(fs.basePath, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("無法建立任務暫存目錄 '%s': %w", dir, err)
	}
	return dir, nil
}

// SaveSource 將上傳的原始容器存入任務暫存區，回傳絕對路徑
func (fs *FileSystemScratch) SaveSource(jobID string, filename string, data []byte) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("SaveSource 參數 filename 不得為空")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("SaveSource 參數 data 不得為空")
	}
	jobDir, err := fs.JobDir(jobID)
	if err != nil {
		return "", err
	}
	sourceDir := filepath.Join(jobDir, "source")
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		return "", fmt.Errorf("無法建立來源目錄 '%s': %w", sourceDir, err)
	}
	// 只取檔名部分，避免上傳檔名夾帶路徑
	targetPath := filepath.Join(sourceDir, filepath.Base(filename))
	if err := os.WriteFile(targetPath, data, 0o644); err != nil {
		return "", fmt.Errorf("無法寫入來源檔案到 '%s': %w", targetPath, err)
	}
	log.Printf("資訊：來源檔案成功儲存到 '%s'", targetPath)
	return targetPath, nil
}

// ReadSource 讀回任務的原始容器。來源目錄應恰好包含一個檔案。
func (fs *FileSystemScratch) ReadSource(jobID string) (string, []byte, error) {
	jobDir, err := fs.JobDir(jobID)
	if err != nil {
		return "", nil, err
	}
	sourceDir := filepath.Join(jobDir, "source")
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return "", nil, fmt.Errorf("無法讀取來源目錄 '%s': %w", sourceDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(sourceDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("無法讀取來源檔案 '%s': %w", path, err)
		}
		return entry.Name(), data, nil
	}
	return "", nil, fmt.Errorf("任務 '%s' 的來源目錄中找不到檔案", jobID)
}

// SaveArtifact 將分析產出（PDF、報告）存入任務暫存區，回傳絕對路徑
func (fs *FileSystemScratch) SaveArtifact(jobID string, name string, data []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("SaveArtifact 參數 name 不得為空")
	}
	jobDir, err := fs.JobDir(jobID)
	if err != nil {
		return "", err
	}
	targetPath := filepath.Join(jobDir, filepath.Base(name))
	if err := os.WriteFile(targetPath, data, 0o644); err != nil {
		return "", fmt.Errorf("無法寫入產出檔案到 '%s': %w", targetPath, err)
	}
	log.Printf("資訊：產出檔案成功儲存到 '%s'", targetPath)
	return targetPath, nil
}

// ReadFile 讀取暫存區內的檔案，並確認路徑確實位於暫存根目錄之下
func (fs *FileSystemScratch) ReadFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("無法解析路徑 '%s': %w", path, err)
	}
	rel, err := filepath.Rel(fs.basePath, absPath)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return nil, fmt.Errorf("路徑 '%s' 不在暫存根目錄之下", path)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("無法讀取檔案 '%s': %w", absPath, err)
	}
	return data, nil
}

// CleanupMedia 移除任務暫存區中提取出的媒體檔案（任務成功完成後呼叫）。
// 任務失敗時不呼叫本方法：部分產出保留在原地供診斷。
func (fs *FileSystemScratch) CleanupMedia(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("CleanupMedia 參數 jobID 不得為空")
	}
	mediaDir := filepath.Join(fs.basePath, jobID, "media")
	if _, err := os.Stat(mediaDir); os.IsNotExist(err) {
		return nil
	}
	log.Printf("資訊：正在清理任務 '%s' 的媒體暫存目錄...", jobID)
	if err := os.RemoveAll(mediaDir); err != nil {
		return fmt.Errorf("無法清理媒體暫存目錄 '%s': %w", mediaDir, err)
	}
	return nil
}
