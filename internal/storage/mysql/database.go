package mysql

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"DeckScope-admin/internal/config"
	"DeckScope-admin/internal/models"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQLStore 結構
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立 MySQL 連線並驗證可用性
func NewMySQLStore(dbCfg config.DatabaseConfig) (*MySQLStore, error) {
	if dbCfg.Driver != "mysql" {
		return nil, fmt.Errorf("不支援的資料庫驅動程式: %s", dbCfg.Driver)
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", dbCfg.User, dbCfg.Password, dbCfg.Host, dbCfg.Port, dbCfg.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("開啟資料庫連線失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("無法連線到資料庫 (ping 失敗): %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	log.Println("資訊：成功連線到 MySQL 資料庫。")
	return &MySQLStore{db: db}, nil
}

// Close 關閉資料庫連線
func (s *MySQLStore) Close() error {
	if s.db != nil {
		log.Println("資訊：正在關閉 MySQL 資料庫連線...")
		return s.db.Close()
	}
	return nil
}

// CreateJob 為一份上傳的簡報建立新任務記錄，初始狀態為 pending。
// 重複提交同一份文件一律視為新任務，不做內容雜湊去重。
func (s *MySQLStore) CreateJob(sourceFilename string) (*models.Job, error) {
	if strings.TrimSpace(sourceFilename) == "" {
		return nil, fmt.Errorf("來源檔名不得為空")
	}
	job := &models.Job{
		ID:             uuid.New().String(),
		SourceFilename: sourceFilename,
		Status:         models.StatusPending,
		CreatedAt:      time.Now(),
	}
	query := `INSERT INTO jobs (id, source_filename, status, created_at) VALUES (?, ?, ?, ?);`
	if _, err := s.db.Exec(query, job.ID, job.SourceFilename, job.Status, job.CreatedAt); err != nil {
		return nil, fmt.Errorf("插入新任務記錄失敗 (檔名: %s): %w", sourceFilename, err)
	}
	log.Printf("資訊：新增任務記錄成功，ID: %s (檔名: %s)\n", job.ID, sourceFilename)
	return job, nil
}

// GetJobByID 查詢單一任務；查無資料時回傳 (nil, nil)
func (s *MySQLStore) GetJobByID(jobID string) (*models.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("無效的 JobID")
	}
	query := `SELECT id, source_filename, status, created_at, completed_at, artifact_path, error_detail FROM jobs WHERE id = ?;`
	row := s.db.QueryRow(query, jobID)
	var j models.Job
	err := row.Scan(&j.ID, &j.SourceFilename, &j.Status, &j.CreatedAt, &j.CompletedAt, &j.ArtifactPath, &j.ErrorDetail)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("查詢 JobID %s 失敗: %w", jobID, err)
	}
	return &j, nil
}

// ListJobs 依建立時間由新到舊列出任務
func (s *MySQLStore) ListJobs(limit int, offset int) ([]models.Job, error) {
	query := `SELECT id, source_filename, status, created_at, completed_at, artifact_path, error_detail FROM jobs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?;`
	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("查詢任務列表失敗: %w", err)
	}
	defer rows.Close()
	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.SourceFilename, &j.Status, &j.CreatedAt, &j.CompletedAt, &j.ArtifactPath, &j.ErrorDetail); err != nil {
			log.Printf("錯誤：掃描任務列表查詢結果行失敗: %v", err)
			continue
		}
		jobs = append(jobs, j)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("處理任務列表查詢結果集時發生錯誤: %w", err)
	}
	return jobs, nil
}

// GetPendingJobs 依建立時間由舊到新取出等待處理的任務
func (s *MySQLStore) GetPendingJobs(limit int) ([]models.Job, error) {
	query := `SELECT id, source_filename, status, created_at, completed_at, artifact_path, error_detail FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?;`
	rows, err := s.db.Query(query, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("查詢待處理任務失敗: %w", err)
	}
	defer rows.Close()
	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.SourceFilename, &j.Status, &j.CreatedAt, &j.CompletedAt, &j.ArtifactPath, &j.ErrorDetail); err != nil {
			log.Printf("錯誤：掃描待處理任務查詢結果行失敗: %v", err)
			continue
		}
		jobs = append(jobs, j)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("處理待處理任務查詢結果集時發生錯誤: %w", err)
	}
	log.Printf("資訊：查詢到 %d 個待處理任務。\n", len(jobs))
	return jobs, nil
}

// ClaimJob 以單筆 compare-and-set 將任務由 pending 轉為 processing。
// 回傳 false 表示任務已被其他 worker 取走或不在 pending 狀態；
// 這保證同一任務同時只會有一個 worker 持有。
func (s *MySQLStore) ClaimJob(jobID string) (bool, error) {
	if jobID == "" {
		return false, fmt.Errorf("無效的 JobID")
	}
	query := `UPDATE jobs SET status = ? WHERE id = ? AND status = ?;`
	res, err := s.db.Exec(query, models.StatusProcessing, jobID, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("認領任務失敗 (JobID: %s): %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("讀取認領任務影響列數失敗 (JobID: %s): %w", jobID, err)
	}
	if affected == 0 {
		return false, nil
	}
	log.Printf("資訊：任務 %s 認領成功，狀態轉為 %s。\n", jobID, models.StatusProcessing)
	return true, nil
}

// CompleteJob 將 processing 中的任務標記為 completed 並記錄報告路徑。
// 任務不在 processing 狀態時拒絕轉移（狀態機只允許前進）。
func (s *MySQLStore) CompleteJob(jobID string, artifactPath string) error {
	if jobID == "" {
		return fmt.Errorf("無效的 JobID")
	}
	if strings.TrimSpace(artifactPath) == "" {
		return fmt.Errorf("completed 任務必須記錄報告路徑")
	}
	query := `UPDATE jobs SET status = ?, completed_at = ?, artifact_path = ? WHERE id = ? AND status = ?;`
	res, err := s.db.Exec(query, models.StatusCompleted, time.Now(), artifactPath, jobID, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("更新任務 %s 為 completed 失敗: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("讀取任務 %s 完成轉移影響列數失敗: %w", jobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("非法狀態轉移：任務 %s 不在 %s 狀態，無法轉為 %s", jobID, models.StatusProcessing, models.StatusCompleted)
	}
	log.Printf("資訊：任務 %s 狀態成功更新為 %s。\n", jobID, models.StatusCompleted)
	return nil
}

// FailJob 將 processing 中的任務標記為 failed 並記錄具體錯誤訊息。
// 錯誤訊息不得為空："unknown error" 式的終止訊息不可接受。
func (s *MySQLStore) FailJob(jobID string, errorDetail string) error {
	if jobID == "" {
		return fmt.Errorf("無效的 JobID")
	}
	if strings.TrimSpace(errorDetail) == "" {
		return fmt.Errorf("failed 任務必須附帶非空的錯誤訊息")
	}
	query := `UPDATE jobs SET status = ?, completed_at = ?, error_detail = ? WHERE id = ? AND status = ?;`
	res, err := s.db.Exec(query, models.StatusFailed, time.Now(), errorDetail, jobID, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("更新任務 %s 為 failed 失敗: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("讀取任務 %s 失敗轉移影響列數失敗: %w", jobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("非法狀態轉移：任務 %s 不在 %s 狀態，無法轉為 %s", jobID, models.StatusProcessing, models.StatusFailed)
	}
	log.Printf("資訊：任務 %s 狀態成功更新為 %s (原因: %s)。\n", jobID, models.StatusFailed, errorDetail)
	return nil
}
