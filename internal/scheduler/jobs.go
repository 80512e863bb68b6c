package scheduler

import (
	"log"

	"DeckScope-admin/internal/services"
)

// SweepJob 是一個排程任務，用於掃描並處理等待分析的簡報任務
type SweepJob struct {
	analyzeService *services.AnalyzeService
}

// NewSweepJob 建立一個 SweepJob
func NewSweepJob(as *services.AnalyzeService) *SweepJob {
	return &SweepJob{analyzeService: as}
}

// Run 實現 cron.Job 介面 (github.com/robfig/cron/v3)
func (j *SweepJob) Run() {
	log.Println("資訊：執行排程任務 - 簡報分析掃描...")
	if err := j.analyzeService.Run(); err != nil {
		log.Printf("錯誤：簡報分析排程任務執行失敗: %v", err)
	} else {
		log.Println("資訊：簡報分析排程任務執行完成。")
	}
}
