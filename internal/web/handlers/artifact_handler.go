package handlers

import (
	"fmt"
	"log"
	"net/http"

	"DeckScope-admin/internal/models"
)

// ArtifactReader 定義了產出檔案的讀取操作
type ArtifactReader interface {
	ReadFile(path string) ([]byte, error)
}

// ArtifactHandler 負責下載已完成任務的分析報告
type ArtifactHandler struct {
	db      DBStore
	scratch ArtifactReader
}

// NewArtifactHandler 建立一個 ArtifactHandler 實例
func NewArtifactHandler(db DBStore, scratch ArtifactReader) *ArtifactHandler {
	if db == nil {
		log.Panicln("ArtifactHandler：DBStore 不得為空")
	}
	if scratch == nil {
		log.Panicln("ArtifactHandler：ArtifactReader 不得為空")
	}
	return &ArtifactHandler{db: db, scratch: scratch}
}

// ServeHTTP 實現 http.Handler 介面。
// 報告只在任務處於 completed 狀態時提供下載。
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[ArtifactHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodGet {
		log.Printf("警告：[ArtifactHandler] 收到非 GET 請求 (%s)，已拒絕。\n", r.Method)
		http.Error(w, "僅支援 GET 方法", http.StatusMethodNotAllowed)
		return
	}

	jobID := r.URL.Query().Get("id")
	if jobID == "" {
		http.Error(w, "缺少 id 查詢參數", http.StatusBadRequest)
		return
	}

	job, err := h.db.GetJobByID(jobID)
	if err != nil {
		log.Printf("錯誤：[ArtifactHandler] 查詢任務 %s 失敗: %v", jobID, err)
		http.Error(w, "查詢任務失敗", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "查無此任務", http.StatusNotFound)
		return
	}
	if job.Status != models.StatusCompleted || !job.ArtifactPath.Valid || job.ArtifactPath.String == "" {
		log.Printf("警告：[ArtifactHandler] 任務 %s 尚無可下載的報告 (狀態: %s)\n", jobID, job.Status)
		http.Error(w, "任務尚未完成，無報告可下載", http.StatusConflict)
		return
	}

	data, err := h.scratch.ReadFile(job.ArtifactPath.String)
	if err != nil {
		log.Printf("錯誤：[ArtifactHandler] 讀取任務 %s 的報告檔案失敗: %v", jobID, err)
		http.Error(w, "讀取報告檔案失敗", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=report_%s.md", job.ID))
	if _, err := w.Write(data); err != nil {
		log.Printf("錯誤：[ArtifactHandler] 傳送任務 %s 的報告內容失敗: %v", jobID, err)
	}
}
