package scheduler

import (
	"log"
	"time"

	"DeckScope-admin/internal/services"

	"github.com/robfig/cron/v3"
)

// Scheduler 結構：包裝 cron 排程器與註冊的掃描任務
type Scheduler struct {
	cron     *cron.Cron
	sweepJob *SweepJob
}

// NewScheduler 建立排程器並以傳入的 Cron 表達式註冊掃描任務
func NewScheduler(as *services.AnalyzeService, sweepCronSpec string) *Scheduler {
	c := cron.New(cron.WithSeconds())

	sweepJob := NewSweepJob(as)
	if sweepCronSpec != "" {
		_, err := c.AddJob(sweepCronSpec, sweepJob)
		if err != nil {
			log.Fatalf("錯誤：無法新增簡報分析掃描任務到排程器 (spec: %s): %v", sweepCronSpec, err)
		}
		log.Printf("資訊：簡報分析掃描任務已註冊，排程：%s\n", sweepCronSpec)
	} else {
		log.Println("警告：未提供簡報分析掃描任務的 Cron 表達式，該任務將不會被排程。")
	}

	return &Scheduler{
		cron:     c,
		sweepJob: sweepJob,
	}
}

// Start 非阻塞啟動排程器
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("資訊：排程器已非阻塞啟動 (如果任務已註冊)。")
}

// Stop 停止排程器並等待運行中的任務結束
func (s *Scheduler) Stop() {
	log.Println("資訊：正在停止排程器...")
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		log.Println("資訊：排程器已優雅停止，所有運行中任務已完成。")
	case <-time.After(10 * time.Second):
		log.Println("警告：排程器停止超時，可能仍有任務在執行。")
	}
}
