package handlers

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"path/filepath"

	"DeckScope-admin/internal/models"
)

// DBStore 定義了應用程式需要的資料庫操作介面
type DBStore interface {
	Close() error
	CreateJob(sourceFilename string) (*models.Job, error)
	GetJobByID(jobID string) (*models.Job, error)
	ListJobs(limit int, offset int) ([]models.Job, error)
	GetPendingJobs(limit int) ([]models.Job, error)
	ClaimJob(jobID string) (bool, error)
	CompleteJob(jobID string, artifactPath string) error
	FailJob(jobID string, errorDetail string) error
}

// DashboardPageData 用於傳遞給 HTML 範本的數據
type DashboardPageData struct {
	Jobs []JobDisplayData
}

// JobDisplayData 用於在範本中顯示的任務數據，包含格式化後的欄位
type JobDisplayData struct {
	ID                 string
	SourceFilename     string
	Status             models.JobStatus
	CreatedAtDisplay   string
	CompletedAtDisplay string
	HasArtifact        bool
	ErrorDetail        string
}

// DashboardHandler 負責處理儀表板頁面的請求
type DashboardHandler struct {
	db       DBStore
	tpl      *template.Template
	basePath string
}

// NewDashboardHandler 建立一個 DashboardHandler 實例
func NewDashboardHandler(db DBStore, templateBasePath string) (*DashboardHandler, error) {
	if db == nil {
		return nil, fmt.Errorf("DBStore 不得為 nil")
	}
	tplPath := filepath.Join(templateBasePath, "dashboard.html")
	tpl, err := template.ParseFiles(tplPath)
	if err != nil {
		return nil, fmt.Errorf("無法解析儀表板範本 '%s': %w", tplPath, err)
	}
	return &DashboardHandler{db: db, tpl: tpl, basePath: templateBasePath}, nil
}

// ServeHTTP 實現 http.Handler 介面
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：收到 %s %s 請求\n", r.Method, r.URL.Path)
	jobs, err := h.db.ListJobs(50, 0)
	if err != nil {
		log.Printf("錯誤：從資料庫獲取任務數據失敗: %v", err)
		http.Error(w, "無法載入儀表板數據", http.StatusInternalServerError)
		return
	}

	displayData := make([]JobDisplayData, 0, len(jobs))
	for _, j := range jobs {
		item := JobDisplayData{
			ID:               j.ID,
			SourceFilename:   j.SourceFilename,
			Status:           j.Status,
			CreatedAtDisplay: j.CreatedAt.Format("2006-01-02 15:04:05"),
			HasArtifact:      j.ArtifactPath.Valid && j.ArtifactPath.String != "",
		}
		if j.CompletedAt.Valid {
			item.CompletedAtDisplay = j.CompletedAt.Time.Format("2006-01-02 15:04:05")
		}
		if j.ErrorDetail.Valid {
			item.ErrorDetail = j.ErrorDetail.String
		}
		displayData = append(displayData, item)
	}

	pageData := DashboardPageData{Jobs: displayData}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tpl.Execute(w, pageData); err != nil {
		log.Printf("錯誤：執行儀表板範本失敗: %v", err)
	}
}
