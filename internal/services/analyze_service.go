package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"DeckScope-admin/internal/clients/gemini"
	"DeckScope-admin/internal/config"
	"DeckScope-admin/internal/models"
	"DeckScope-admin/internal/pptx"
	"DeckScope-admin/internal/web/handlers"
)

// AnalyzeService 結構：驅動單一任務從容器解析到報告產出的完整分析流程
type AnalyzeService struct {
	cfg           *config.Config
	db            handlers.DBStore
	scratch       ScratchStorage
	understanding UnderstandingClient
	renderer      RenderingClient
}

// NewAnalyzeService 建立 AnalyzeService 實例
func NewAnalyzeService(
	cfg *config.Config,
	db handlers.DBStore,
	scratch ScratchStorage,
	understanding UnderstandingClient,
	renderer RenderingClient,
) (*AnalyzeService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("AnalyzeService：設定不得為空")
	}
	if db == nil {
		return nil, fmt.Errorf("AnalyzeService：DBStore 不得為空")
	}
	if scratch == nil {
		return nil, fmt.Errorf("AnalyzeService：ScratchStorage 不得為空")
	}
	if understanding == nil {
		return nil, fmt.Errorf("AnalyzeService：理解服務客戶端不得為空")
	}
	if renderer == nil {
		return nil, fmt.Errorf("AnalyzeService：渲染服務客戶端不得為空")
	}
	log.Println("資訊：AnalyzeService 初始化完成。")
	return &AnalyzeService{
		cfg:           cfg,
		db:            db,
		scratch:       scratch,
		understanding: understanding,
		renderer:      renderer,
	}, nil
}

// Run 排程器進入點：掃描並處理待分析任務
func (s *AnalyzeService) Run() error {
	return s.ProcessPendingJobs()
}

// ProcessPendingJobs 取出待處理任務並逐一執行。
// 認領透過資料庫的 compare-and-set 完成，因此多個實例同時掃描也不會重複處理；
// 已進入 processing 的任務一律執行到終止狀態，不支援中途取消。
func (s *AnalyzeService) ProcessPendingJobs() error {
	limit := s.cfg.Scheduler.ClaimBatchLimit
	if limit <= 0 {
		limit = 5
	}
	jobs, err := s.db.GetPendingJobs(limit)
	if err != nil {
		log.Printf("錯誤：[AnalyzeService] 從資料庫獲取待處理任務失敗: %v", err)
		return err
	}
	if len(jobs) == 0 {
		log.Println("資訊：[AnalyzeService] 沒有等待分析的任務。")
		return nil
	}
	log.Printf("資訊：[AnalyzeService] 找到 %d 個任務準備進行分析。\n", len(jobs))

	var successCount, failCount int
	for _, job := range jobs {
		claimed, err := s.db.ClaimJob(job.ID)
		if err != nil {
			log.Printf("錯誤：[AnalyzeService] 認領任務 %s 失敗: %v", job.ID, err)
			failCount++
			continue
		}
		if !claimed {
			log.Printf("資訊：[AnalyzeService] 任務 %s 已被其他 worker 取走，跳過。\n", job.ID)
			continue
		}
		if s.processClaimedJob(job) {
			successCount++
		} else {
			failCount++
		}
	}
	log.Printf("資訊：[AnalyzeService] 分析流程完成。成功: %d, 失敗: %d\n", successCount, failCount)
	return nil
}

// processClaimedJob 執行單一已認領任務，回傳是否成功。
// 任務必定走到終止狀態；流程中任何未預期的 panic 也會被捕捉並轉為 failed。
func (s *AnalyzeService) processClaimedJob(job models.Job) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("錯誤：[AnalyzeService] 任務 %s 執行期間發生未預期錯誤: %v", job.ID, r)
			s.failJob(job.ID, fmt.Sprintf("分析流程發生未預期錯誤: %v", r))
			ok = false
		}
	}()

	log.Printf("資訊：[AnalyzeService] 開始處理任務 %s (檔名: %s)\n", job.ID, job.SourceFilename)
	jobDir, err := s.scratch.JobDir(job.ID)
	if err != nil {
		s.failJob(job.ID, "建立任務暫存目錄失敗: "+err.Error())
		return false
	}
	run := models.RunContext{JobID: job.ID, ScratchDir: jobDir, StartedAt: time.Now()}

	filename, data, err := s.scratch.ReadSource(job.ID)
	if err != nil {
		s.failJob(job.ID, "讀取上傳的簡報容器失敗: "+err.Error())
		return false
	}

	container, err := pptx.Open(data)
	if err != nil {
		s.failJob(job.ID, "簡報容器格式無效: "+err.Error())
		return false
	}

	// 字型正規化失敗從不致命：退回未改寫的原始容器繼續
	normalized, err := pptx.RewriteTypography(container, s.cfg.Rewrite.TargetFont)
	if err != nil {
		log.Printf("警告：[AnalyzeService] 任務 %s 字型正規化失敗，使用原始容器繼續: %v\n", job.ID, err)
		normalized = container
	}

	extracted, err := pptx.ExtractMedia(normalized, run.ScratchDir)
	if err != nil {
		s.failJob(job.ID, "提取媒體資產失敗: "+err.Error())
		return false
	}

	pdfPath, pageCount, err := s.renderDocument(run, normalized, filename)
	if err != nil {
		// 沒有分頁文件就無法產出頁面結構化報告，渲染失敗對任務是致命的
		s.failJob(job.ID, "渲染服務失敗: "+err.Error())
		return false
	}

	assetAnalyses := s.analyzeAssets(run, extracted)

	pages, err := s.analyzeDocument(run, pdfPath, assetAnalyses)
	if err != nil {
		s.failJob(job.ID, "整體文件分析失敗: "+err.Error())
		return false
	}

	report := AggregateReport(job.ID, job.SourceFilename, pages, assetAnalyses, pageCount)
	artifact, err := RenderReportArtifact(report)
	if err != nil {
		s.failJob(job.ID, "產出報告序列化失敗: "+err.Error())
		return false
	}
	artifactPath, err := s.scratch.SaveArtifact(job.ID, "report.md", artifact)
	if err != nil {
		s.failJob(job.ID, "寫入報告檔案失敗: "+err.Error())
		return false
	}

	if err := s.db.CompleteJob(job.ID, artifactPath); err != nil {
		log.Printf("錯誤：[AnalyzeService] 更新任務 %s 為 completed 失敗: %v", job.ID, err)
		return false
	}
	if err := s.scratch.CleanupMedia(job.ID); err != nil {
		log.Printf("警告：[AnalyzeService] 清理任務 %s 媒體暫存失敗: %v", job.ID, err)
	}
	log.Printf("資訊：[AnalyzeService] 任務 %s 分析完成，報告位於 %s (耗時: %s)\n",
		job.ID, artifactPath, time.Since(run.StartedAt).Round(time.Second))
	return true
}

// renderDocument 以移除影片的拋棄式容器副本呼叫渲染服務，回傳 PDF 暫存路徑與頁數
func (s *AnalyzeService) renderDocument(run models.RunContext, c *pptx.Container, filename string) (string, int, error) {
	stripped := pptx.StripVideos(c)
	strippedData, err := stripped.Bytes()
	if err != nil {
		return "", 0, fmt.Errorf("打包渲染用容器失敗: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.rendererTimeout())
	defer cancel()
	pdfData, pageCount, err := s.renderer.RenderPDF(ctx, strippedData, filename)
	if err != nil {
		return "", 0, err
	}
	// 頁數以渲染結果為準；與容器的投影片數不一致時留下線索
	if slides := pptx.SlideCount(c); slides > 0 && slides != pageCount {
		log.Printf("警告：[AnalyzeService] 任務 %s 渲染頁數 (%d) 與容器投影片數 (%d) 不一致，以渲染結果為準。\n", run.JobID, pageCount, slides)
	}

	pdfPath, err := s.scratch.SaveArtifact(run.JobID, "rendered.pdf", pdfData)
	if err != nil {
		return "", 0, fmt.Errorf("寫入渲染結果失敗: %w", err)
	}
	return pdfPath, pageCount, nil
}

// analyzeAssets 依固定順序驅動理解服務：先逐張圖片，再逐部影片。
// 刻意循序而非並行——配合外部服務的速率限制，也讓錯誤歸屬清楚明確。
// 單一資產分析失敗只記錄在該資產的 error 欄位，絕不中斷整體流程。
func (s *AnalyzeService) analyzeAssets(run models.RunContext, extracted *pptx.ExtractResult) []models.AssetAnalysis {
	analyses := make([]models.AssetAnalysis, 0, len(extracted.Images)+len(extracted.Videos))

	imagePrompt := s.currentPrompt(s.cfg.Prompts.ImageAnalysis, "ImageAnalysis",
		"請分析此圖片，擷取圖中文字並描述視覺內容。")
	for _, asset := range extracted.Images {
		log.Printf("資訊：[AnalyzeService] 任務 %s 開始分析圖片 %s\n", run.JobID, asset.Filename)
		analysis := models.AssetAnalysis{
			AssetFilename:    asset.Filename,
			Kind:             asset.Kind,
			OwningSlideIndex: asset.OwningSlideIndex,
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.understandingTimeout())
		result, err := s.understanding.AnalyzeImage(ctx, asset.ScratchPath, imagePrompt)
		cancel()
		if err != nil {
			log.Printf("錯誤：[AnalyzeService] 任務 %s 圖片 %s 分析失敗: %v", run.JobID, asset.Filename, err)
			analysis.ErrorMessage = models.NewJsonNullString("圖片分析失敗: " + err.Error())
		} else {
			analysis.ExtractedText = models.NewJsonNullString(result.ExtractedText)
			if result.Description != "" {
				analysis.Description = models.NewJsonNullString(result.Description)
			}
			if result.Language != "" {
				analysis.Language = models.NewJsonNullString(result.Language)
			}
			// 降級回應保留了原始文字，但解析失敗本身仍要記錄在該資產的 error 欄位
			if !result.Structured {
				log.Printf("警告：[AnalyzeService] 任務 %s 圖片 %s 的回應無法解析為預期結構，已記錄於結果。\n", run.JobID, asset.Filename)
				analysis.ErrorMessage = models.NewJsonNullString("圖片分析回應無法解析為預期結構，原始文字已保留")
			}
		}
		analyses = append(analyses, analysis)
	}

	videoPrompt := s.currentPrompt(s.cfg.Prompts.VideoAnalysis, "VideoAnalysis",
		"請分析此影片，提供逐字稿、場景摘要與語言。")
	for _, asset := range extracted.Videos {
		log.Printf("資訊：[AnalyzeService] 任務 %s 開始分析影片 %s\n", run.JobID, asset.Filename)
		analysis := models.AssetAnalysis{
			AssetFilename:    asset.Filename,
			Kind:             asset.Kind,
			OwningSlideIndex: asset.OwningSlideIndex,
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.understandingTimeout())
		result, err := s.understanding.AnalyzeVideo(ctx, asset.ScratchPath, videoPrompt)
		cancel()
		if err != nil {
			log.Printf("錯誤：[AnalyzeService] 任務 %s 影片 %s 分析失敗: %v", run.JobID, asset.Filename, err)
			analysis.ErrorMessage = models.NewJsonNullString("影片分析失敗: " + err.Error())
			// 即使失敗，逐字稿欄位仍以空字串呈現而非 null
			analysis.Transcription = models.NewJsonNullString("")
		} else {
			analysis.Transcription = models.NewJsonNullString(result.Transcription)
			if result.Description != "" {
				analysis.Description = models.NewJsonNullString(result.Description)
			}
			analysis.Scenes = result.Scenes
			if result.Language != "" {
				analysis.Language = models.NewJsonNullString(result.Language)
			}
			if !result.Structured {
				log.Printf("警告：[AnalyzeService] 任務 %s 影片 %s 的回應無法解析為預期結構，已記錄於結果。\n", run.JobID, asset.Filename)
				analysis.ErrorMessage = models.NewJsonNullString("影片分析回應無法解析為預期結構，原始內容已保留")
			}
		}
		analyses = append(analyses, analysis)
	}

	return analyses
}

// analyzeDocument 以前兩階段的媒體分析結果為脈絡，對整份渲染後文件做逐頁分析。
// 這一步失敗對任務是致命的：沒有頁面結構就無處掛載媒體結果。
func (s *AnalyzeService) analyzeDocument(run models.RunContext, pdfPath string, assetAnalyses []models.AssetAnalysis) ([]models.PageAnalysis, error) {
	assetContextJSON := ""
	if len(assetAnalyses) > 0 {
		if data, err := json.Marshal(assetAnalyses); err == nil {
			assetContextJSON = string(data)
		} else {
			log.Printf("警告：[AnalyzeService] 任務 %s 序列化媒體分析脈絡失敗，整體分析將不含媒體脈絡: %v", run.JobID, err)
		}
	}

	docPrompt := s.currentPrompt(s.cfg.Prompts.DocumentAnalysis, "DocumentAnalysis",
		"請逐頁分析此文件，擷取每頁文字、標題、列點與主題。")
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.understandingTimeout())
	defer cancel()
	docPages, err := s.understanding.AnalyzeDocument(ctx, pdfPath, docPrompt, assetContextJSON)
	if err != nil {
		return nil, err
	}

	pages := make([]models.PageAnalysis, 0, len(docPages))
	for _, dp := range docPages {
		pages = append(pages, convertDocumentPage(dp))
	}
	return pages, nil
}

// convertDocumentPage 將理解服務的頁面回應轉為內部模型
func convertDocumentPage(dp gemini.DocumentPage) models.PageAnalysis {
	page := models.PageAnalysis{
		PageNumber:    dp.PageNumber,
		ExtractedText: dp.ExtractedText,
		BulletPoints:  dp.BulletPoints,
		KeyTopics:     dp.KeyTopics,
	}
	if dp.Title != "" {
		page.Title = models.NewJsonNullString(dp.Title)
	}
	if dp.VisualElementSummary != "" {
		page.VisualElementSummary = models.NewJsonNullString(dp.VisualElementSummary)
	}
	if dp.Language != "" {
		page.Language = models.NewJsonNullString(dp.Language)
	}
	return page
}

// currentPrompt 取得目前啟用版本的 Prompt，未設定時退回內建預設值
func (s *AnalyzeService) currentPrompt(prompts config.AnalysisPrompts, label string, fallback string) string {
	prompt, version, ok := prompts.Current()
	if !ok {
		log.Printf("警告：[AnalyzeService] 設定檔中未找到有效的 %s Prompt 版本，將使用預設。", label)
		return fallback
	}
	log.Printf("資訊：[AnalyzeService] 使用 %s Prompt 版本: %s\n", label, version)
	return prompt
}

// failJob 將任務標記為 failed；轉移本身失敗時僅記錄，不再往上拋
func (s *AnalyzeService) failJob(jobID string, detail string) {
	if err := s.db.FailJob(jobID, detail); err != nil {
		log.Printf("錯誤：[AnalyzeService] 更新任務 %s 為 failed 失敗: %v", jobID, err)
	}
}

func (s *AnalyzeService) understandingTimeout() time.Duration {
	if s.cfg.GeminiClient.TimeoutMinutes > 0 {
		return time.Duration(s.cfg.GeminiClient.TimeoutMinutes) * time.Minute
	}
	return 10 * time.Minute
}

func (s *AnalyzeService) rendererTimeout() time.Duration {
	if s.cfg.RendererClient.TimeoutMinutes > 0 {
		return time.Duration(s.cfg.RendererClient.TimeoutMinutes) * time.Minute
	}
	return 5 * time.Minute
}
