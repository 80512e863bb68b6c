package handlers

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"time"
)

// ExportHandler 負責處理任務清單的 CSV 匯出請求
type ExportHandler struct {
	db DBStore
}

// NewExportHandler 建立一個 ExportHandler 實例
func NewExportHandler(db DBStore) *ExportHandler {
	if db == nil {
		log.Panicln("ExportHandler：DBStore 不得為空")
	}
	return &ExportHandler{db: db}
}

// ServeHTTP 實現 http.Handler 介面
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[ExportHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodGet {
		log.Printf("警告：[ExportHandler] 收到非 GET 請求 (%s)，已拒絕。\n", r.Method)
		http.Error(w, "僅支援 GET 方法", http.StatusMethodNotAllowed)
		return
	}

	jobs, err := h.db.ListJobs(1000, 0)
	if err != nil {
		log.Printf("錯誤：[ExportHandler] 從資料庫獲取任務數據失敗: %v", err)
		http.Error(w, "無法獲取匯出數據", http.StatusInternalServerError)
		return
	}
	log.Printf("資訊：[ExportHandler] 獲取到 %d 個任務。", len(jobs))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=簡報分析任務_%s.csv", time.Now().Format("2006-01-02")))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	headers := []string{
		"任務編號",
		"來源檔名",
		"狀態",
		"建立時間",
		"完成時間",
		"報告路徑",
		"錯誤訊息",
	}
	if err := writer.Write(headers); err != nil {
		log.Printf("錯誤：[ExportHandler] 寫入 CSV 標題失敗: %v", err)
		return
	}

	for _, j := range jobs {
		row := make([]string, len(headers))
		row[0] = j.ID
		row[1] = j.SourceFilename
		row[2] = string(j.Status)
		row[3] = j.CreatedAt.Format("2006-01-02 15:04:05")
		if j.CompletedAt.Valid {
			row[4] = j.CompletedAt.Time.Format("2006-01-02 15:04:05")
		}
		if j.ArtifactPath.Valid {
			row[5] = j.ArtifactPath.String
		}
		if j.ErrorDetail.Valid {
			row[6] = j.ErrorDetail.String
		}
		if err := writer.Write(row); err != nil {
			log.Printf("錯誤：[ExportHandler] 寫入 CSV 資料列失敗: %v", err)
			return
		}
	}
}
