package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"DeckScope-admin/internal/models"
)

// JobStatusResponse 任務狀態查詢的回應格式
type JobStatusResponse struct {
	ID             string           `json:"id"`
	SourceFilename string           `json:"sourceFilename"`
	Status         models.JobStatus `json:"status"`
	CreatedAt      string           `json:"createdAt"`
	CompletedAt    string           `json:"completedAt,omitempty"`
	ErrorDetail    string           `json:"errorDetail,omitempty"`
	HasArtifact    bool             `json:"hasArtifact"`
}

// JobStatusHandler 負責任務狀態與任務列表的 JSON 查詢
type JobStatusHandler struct {
	db DBStore
}

// NewJobStatusHandler 建立一個 JobStatusHandler 實例
func NewJobStatusHandler(db DBStore) *JobStatusHandler {
	if db == nil {
		log.Panicln("JobStatusHandler：DBStore 不得為空")
	}
	return &JobStatusHandler{db: db}
}

// ServeHTTP 實現 http.Handler 介面。
// 帶 id 查詢參數回傳單一任務，否則回傳最近的任務列表。
func (h *JobStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[JobStatusHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodGet {
		log.Printf("警告：[JobStatusHandler] 收到非 GET 請求 (%s)，已拒絕。\n", r.Method)
		http.Error(w, "僅支援 GET 方法", http.StatusMethodNotAllowed)
		return
	}

	jobID := r.URL.Query().Get("id")
	w.Header().Set("Content-Type", "application/json")

	if jobID == "" {
		jobs, err := h.db.ListJobs(50, 0)
		if err != nil {
			log.Printf("錯誤：[JobStatusHandler] 查詢任務列表失敗: %v", err)
			http.Error(w, "查詢任務列表失敗", http.StatusInternalServerError)
			return
		}
		responses := make([]JobStatusResponse, 0, len(jobs))
		for _, j := range jobs {
			responses = append(responses, toJobStatusResponse(&j))
		}
		json.NewEncoder(w).Encode(responses)
		return
	}

	job, err := h.db.GetJobByID(jobID)
	if err != nil {
		log.Printf("錯誤：[JobStatusHandler] 查詢任務 %s 失敗: %v", jobID, err)
		http.Error(w, "查詢任務失敗", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "查無此任務", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(toJobStatusResponse(job))
}

func toJobStatusResponse(j *models.Job) JobStatusResponse {
	resp := JobStatusResponse{
		ID:             j.ID,
		SourceFilename: j.SourceFilename,
		Status:         j.Status,
		CreatedAt:      j.CreatedAt.Format("2006-01-02 15:04:05"),
		HasArtifact:    j.ArtifactPath.Valid && j.ArtifactPath.String != "",
	}
	if j.CompletedAt.Valid {
		resp.CompletedAt = j.CompletedAt.Time.Format("2006-01-02 15:04:05")
	}
	if j.ErrorDetail.Valid {
		resp.ErrorDetail = j.ErrorDetail.String
	}
	return resp
}
