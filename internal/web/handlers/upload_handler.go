package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadBytes 單次上傳容器的大小上限 (200MB)
const maxUploadBytes = 200 << 20

// SourceSaver 定義了上傳處理器需要的暫存區寫入操作
type SourceSaver interface {
	SaveSource(jobID string, filename string, data []byte) (string, error)
}

// AnalyzeRunner 定義了可被觸發的分析流程
type AnalyzeRunner interface {
	Run() error
}

// UploadHandler 負責接收簡報容器上傳並建立分析任務
type UploadHandler struct {
	db      DBStore
	scratch SourceSaver
	runner  AnalyzeRunner
}

// NewUploadHandler 建立一個 UploadHandler 實例。
// runner 可為 nil：此時任務只入列，等待排程器掃描。
func NewUploadHandler(db DBStore, scratch SourceSaver, runner AnalyzeRunner) *UploadHandler {
	if db == nil {
		log.Panicln("UploadHandler：DBStore 不得為空")
	}
	if scratch == nil {
		log.Panicln("UploadHandler：SourceSaver 不得為空")
	}
	return &UploadHandler{db: db, scratch: scratch, runner: runner}
}

// ServeHTTP 實現 http.Handler 介面
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[UploadHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		log.Printf("警告：[UploadHandler] 收到非 POST 請求 (%s)，已拒絕。\n", r.Method)
		http.Error(w, "僅支援 POST 方法", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("deck")
	if err != nil {
		log.Printf("警告：[UploadHandler] 讀取上傳欄位 'deck' 失敗: %v", err)
		http.Error(w, "請以 multipart 表單欄位 'deck' 上傳簡報檔案", http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pptx") {
		log.Printf("警告：[UploadHandler] 拒絕不支援的副檔名: %s", filename)
		http.Error(w, "僅支援 .pptx 簡報容器", http.StatusUnsupportedMediaType)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("錯誤：[UploadHandler] 讀取上傳內容失敗: %v", err)
		http.Error(w, "讀取上傳內容失敗", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "上傳內容為空", http.StatusBadRequest)
		return
	}

	// 重複上傳同一份檔案視為獨立的新任務
	job, err := h.db.CreateJob(filename)
	if err != nil {
		log.Printf("錯誤：[UploadHandler] 建立任務記錄失敗: %v", err)
		http.Error(w, "建立任務失敗", http.StatusInternalServerError)
		return
	}
	if _, err := h.scratch.SaveSource(job.ID, filename, data); err != nil {
		log.Printf("錯誤：[UploadHandler] 儲存上傳檔案失敗 (JobID: %s): %v", job.ID, err)
		if failErr := h.failFreshJob(job.ID, "儲存上傳檔案失敗: "+err.Error()); failErr != nil {
			log.Printf("錯誤：[UploadHandler] 標記任務 %s 為 failed 失敗: %v", job.ID, failErr)
		}
		http.Error(w, "儲存上傳檔案失敗", http.StatusInternalServerError)
		return
	}
	log.Printf("資訊：[UploadHandler] 任務 %s 建立完成 (檔名: %s, 大小: %d bytes)\n", job.ID, filename, len(data))

	// 上傳後立即喚醒一次掃描，不必等下一個排程週期
	if h.runner != nil {
		go func() {
			if err := h.runner.Run(); err != nil {
				log.Printf("錯誤：[UploadHandler] 上傳觸發的分析掃描失敗: %v", err)
			}
		}()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"jobId":  job.ID,
		"status": string(job.Status),
	})
}

// failFreshJob 將剛建立就出錯的任務推進到 failed。
// 狀態機不允許 pending 直接跳 failed，因此先認領再標記失敗。
func (h *UploadHandler) failFreshJob(jobID string, detail string) error {
	if _, err := h.db.ClaimJob(jobID); err != nil {
		return err
	}
	return h.db.FailJob(jobID, detail)
}
