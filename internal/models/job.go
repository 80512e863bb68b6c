package models

import (
	"database/sql"
	"time"
)

// JobStatus 定義文件分析任務的生命週期狀態
type JobStatus string

const (
	StatusPending    JobStatus = "pending"    // 初始狀態，文件已上傳，等待處理
	StatusProcessing JobStatus = "processing" // 正在執行分析流程（同一時間僅一個 worker 持有）
	StatusCompleted  JobStatus = "completed"  // 終止狀態：分析完成，報告產出
	StatusFailed     JobStatus = "failed"     // 終止狀態：分析失敗，錯誤訊息已記錄
)

// IsTerminal 回傳該狀態是否為終止狀態（completed / failed 之後不得再轉移）
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo 檢查狀態轉移是否合法。
// 合法路徑僅有 pending -> processing -> {completed, failed}。
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Job 對應 jobs 資料表，一筆記錄代表一份已提交的簡報文件
type Job struct {
	ID             string         `json:"id"`
	SourceFilename string         `json:"source_filename"`
	Status         JobStatus      `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    sql.NullTime   `json:"completed_at"`
	ArtifactPath   sql.NullString `json:"artifact_path"`
	ErrorDetail    sql.NullString `json:"error_detail"`
}

// MediaKind 定義媒體資產的類型
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// UnknownSlideIndex 表示無法解析媒體所屬投影片時的佔位值
const UnknownSlideIndex = 0

// MediaAsset 代表從簡報容器中提取出的一個媒體檔案。
// OwningSlideIndex 為 1 起算的投影片編號；無法解析時為 UnknownSlideIndex。
type MediaAsset struct {
	Filename         string    `json:"filename"`
	Kind             MediaKind `json:"kind"`
	ScratchPath      string    `json:"-"`
	OwningSlideIndex int       `json:"owning_slide_index"`
}

// RunContext 攜帶單次分析執行所需的所有執行期值。
// 每個 Job 各自持有一份，不使用任何套件層級的可變狀態，確保多個 Job 並行執行安全。
type RunContext struct {
	JobID      string
	ScratchDir string
	StartedAt  time.Time
}
