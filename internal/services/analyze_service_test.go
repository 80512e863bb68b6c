package services

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"DeckScope-admin/internal/clients/gemini"
	"DeckScope-admin/internal/config"
	"DeckScope-admin/internal/models"
)

// --- 測試替身 ---

type fakeDB struct {
	pending   []models.Job
	claimFail bool
	completed map[string]string // jobID -> artifactPath
	failed    map[string]string // jobID -> errorDetail
}

func newFakeDB(jobs ...models.Job) *fakeDB {
	return &fakeDB{
		pending:   jobs,
		completed: make(map[string]string),
		failed:    make(map[string]string),
	}
}

func (f *fakeDB) Close() error { return nil }
func (f *fakeDB) CreateJob(sourceFilename string) (*models.Job, error) {
	return nil, fmt.Errorf("測試中不應呼叫 CreateJob")
}
func (f *fakeDB) GetJobByID(jobID string) (*models.Job, error) { return nil, nil }
func (f *fakeDB) ListJobs(limit int, offset int) ([]models.Job, error) {
	return nil, nil
}
func (f *fakeDB) GetPendingJobs(limit int) ([]models.Job, error) {
	return f.pending, nil
}
func (f *fakeDB) ClaimJob(jobID string) (bool, error) {
	return !f.claimFail, nil
}
func (f *fakeDB) CompleteJob(jobID string, artifactPath string) error {
	f.completed[jobID] = artifactPath
	return nil
}
func (f *fakeDB) FailJob(jobID string, errorDetail string) error {
	if strings.TrimSpace(errorDetail) == "" {
		return fmt.Errorf("failed 任務必須附帶非空的錯誤訊息")
	}
	f.failed[jobID] = errorDetail
	return nil
}

type fakeScratch struct {
	dir        string
	sourceName string
	source     []byte
	artifacts  map[string][]byte
	cleaned    bool
}

func newFakeScratch(t *testing.T, sourceName string, source []byte) *fakeScratch {
	t.Helper()
	return &fakeScratch{
		dir:        t.TempDir(),
		sourceName: sourceName,
		source:     source,
		artifacts:  make(map[string][]byte),
	}
}

func (f *fakeScratch) JobDir(jobID string) (string, error) { return f.dir, nil }
func (f *fakeScratch) SaveSource(jobID string, filename string, data []byte) (string, error) {
	return filepath.Join(f.dir, "source", filename), nil
}
func (f *fakeScratch) ReadSource(jobID string) (string, []byte, error) {
	if f.source == nil {
		return "", nil, fmt.Errorf("找不到來源檔案")
	}
	return f.sourceName, f.source, nil
}
func (f *fakeScratch) SaveArtifact(jobID string, name string, data []byte) (string, error) {
	f.artifacts[name] = data
	return filepath.Join(f.dir, name), nil
}
func (f *fakeScratch) CleanupMedia(jobID string) error {
	f.cleaned = true
	return nil
}

type fakeUnderstanding struct {
	imageResult *gemini.ImageAnalysis
	imageErr    error
	videoResult *gemini.VideoAnalysis
	videoErr    error
	docPages    []gemini.DocumentPage
	docErr      error

	imageCalls      int
	videoCalls      int
	docContextJSONs []string
}

func (f *fakeUnderstanding) AnalyzeImage(ctx context.Context, imagePath string, prompt string) (*gemini.ImageAnalysis, error) {
	f.imageCalls++
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return f.imageResult, nil
}

func (f *fakeUnderstanding) AnalyzeVideo(ctx context.Context, videoPath string, prompt string) (*gemini.VideoAnalysis, error) {
	f.videoCalls++
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	return f.videoResult, nil
}

func (f *fakeUnderstanding) AnalyzeDocument(ctx context.Context, pdfPath string, prompt string, assetContextJSON string) ([]gemini.DocumentPage, error) {
	f.docContextJSONs = append(f.docContextJSONs, assetContextJSON)
	if f.docErr != nil {
		return nil, f.docErr
	}
	return f.docPages, nil
}

type fakeRenderer struct {
	pdf       []byte
	pageCount int
	err       error
	lastInput []byte
}

func (f *fakeRenderer) RenderPDF(ctx context.Context, containerData []byte, filename string) ([]byte, int, error) {
	f.lastInput = containerData
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.pdf, f.pageCount, nil
}

// --- 測試輔助 ---

func buildDeckZip(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for name, content := range map[string]string{
		"ppt/presentation.xml":  `<p:presentation/>`,
		"ppt/slides/slide1.xml": `<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><a:latin typeface="Arial"/></p:sld>`,
		"ppt/slides/slide2.xml": `<p:sld/>`,
		"ppt/slides/_rels/slide1.xml.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image1.png"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/video" Target="../media/video1.mp4"/>
</Relationships>`,
		"ppt/media/image1.png": "PNGDATA",
		"ppt/media/video1.mp4": "MP4DATA",
	} {
		if override, ok := parts[name]; ok {
			content = override
		}
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("建立測試容器失敗: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("寫入測試容器失敗: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("關閉測試容器失敗: %v", err)
	}
	return buf.Bytes()
}

func testConfig() *config.Config {
	return &config.Config{
		Rewrite:   config.RewriteConfig{TargetFont: "Noto Sans TC"},
		Scheduler: config.SchedulerConfig{ClaimBatchLimit: 5},
	}
}

func pendingJob(id string) models.Job {
	return models.Job{ID: id, SourceFilename: "deck.pptx", Status: models.StatusPending}
}

func newTestService(t *testing.T, db *fakeDB, scratch *fakeScratch, u *fakeUnderstanding, r *fakeRenderer) *AnalyzeService {
	t.Helper()
	svc, err := NewAnalyzeService(testConfig(), db, scratch, u, r)
	if err != nil {
		t.Fatalf("NewAnalyzeService 失敗: %v", err)
	}
	return svc
}

// --- 測試 ---

func TestProcessPendingJobsCompletesJob(t *testing.T) {
	db := newFakeDB(pendingJob("job-1"))
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	understanding := &fakeUnderstanding{
		imageResult: &gemini.ImageAnalysis{ExtractedText: "圖中文字", Description: "一張圖", Language: "zh", Structured: true},
		videoResult: &gemini.VideoAnalysis{Transcription: "", Description: "一段影片", Scenes: []string{"場景一"}, Language: "zh", Structured: true},
		docPages: []gemini.DocumentPage{
			{PageNumber: 1, ExtractedText: "第一頁", Title: "開場"},
			{PageNumber: 2, ExtractedText: "第二頁"},
		},
	}
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.7"), pageCount: 2}
	svc := newTestService(t, db, scratch, understanding, renderer)

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	if _, ok := db.completed["job-1"]; !ok {
		t.Fatalf("任務應標記為 completed, failed: %v", db.failed)
	}
	if understanding.imageCalls != 1 || understanding.videoCalls != 1 {
		t.Errorf("分析呼叫次數 image=%d video=%d, 各預期 1", understanding.imageCalls, understanding.videoCalls)
	}
	// 整體文件分析必須收到媒體分析脈絡
	if len(understanding.docContextJSONs) != 1 || !strings.Contains(understanding.docContextJSONs[0], "image1.png") {
		t.Errorf("文件分析脈絡缺少媒體結果: %v", understanding.docContextJSONs)
	}
	if !scratch.cleaned {
		t.Error("成功完成後應清理媒體暫存")
	}

	report, ok := scratch.artifacts["report.md"]
	if !ok {
		t.Fatal("缺少報告產出")
	}
	out := string(report)
	for _, want := range []string{"## 第 1 頁", "## 第 2 頁", "image1.png", "video1.mp4", "逐字稿："} {
		if !strings.Contains(out, want) {
			t.Errorf("報告缺少 %q", want)
		}
	}
	if _, ok := scratch.artifacts["rendered.pdf"]; !ok {
		t.Error("缺少渲染後的 PDF 產出")
	}
}

func TestProcessPendingJobsFailsWhenRendererFails(t *testing.T) {
	db := newFakeDB(pendingJob("job-2"))
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	understanding := &fakeUnderstanding{}
	renderer := &fakeRenderer{err: fmt.Errorf("渲染服務逾時")}
	svc := newTestService(t, db, scratch, understanding, renderer)

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	detail, ok := db.failed["job-2"]
	if !ok {
		t.Fatalf("渲染失敗時任務應標記為 failed, completed: %v", db.completed)
	}
	if !strings.Contains(detail, "渲染") || !strings.Contains(detail, "逾時") {
		t.Errorf("錯誤訊息應包含具體原因: %q", detail)
	}
	// 渲染之後的階段不應執行
	if understanding.imageCalls != 0 || understanding.videoCalls != 0 {
		t.Error("渲染失敗後不應呼叫理解服務")
	}
	if scratch.cleaned {
		t.Error("任務失敗時不應清理媒體暫存")
	}
}

func TestProcessPendingJobsIsolatesAssetErrors(t *testing.T) {
	db := newFakeDB(pendingJob("job-3"))
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	understanding := &fakeUnderstanding{
		imageErr:    fmt.Errorf("理解服務回傳 500"),
		videoResult: &gemini.VideoAnalysis{Transcription: "影片逐字稿", Structured: true},
		docPages:    []gemini.DocumentPage{{PageNumber: 1, ExtractedText: "第一頁"}},
	}
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.7"), pageCount: 2}
	svc := newTestService(t, db, scratch, understanding, renderer)

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	// 單一資產失敗不中斷任務
	if _, ok := db.completed["job-3"]; !ok {
		t.Fatalf("任務仍應完成, failed: %v", db.failed)
	}
	report := string(scratch.artifacts["report.md"])
	if !strings.Contains(report, "分析錯誤") || !strings.Contains(report, "500") {
		t.Errorf("失敗資產的錯誤應出現在報告中:\n%s", report)
	}
}

// 降級回應（無法解析為預期結構）必須在該資產記錄 error，任務仍照常完成
func TestUnstructuredImageResponseRecordsErrorButCompletes(t *testing.T) {
	db := newFakeDB(pendingJob("job-8"))
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	understanding := &fakeUnderstanding{
		imageResult: &gemini.ImageAnalysis{ExtractedText: "這不是 JSON 的原始回應", Structured: false},
		videoResult: &gemini.VideoAnalysis{Transcription: "稿", Structured: true},
		docPages:    []gemini.DocumentPage{{PageNumber: 1, ExtractedText: "第一頁"}},
	}
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.7"), pageCount: 2}
	svc := newTestService(t, db, scratch, understanding, renderer)

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	if _, ok := db.completed["job-8"]; !ok {
		t.Fatalf("任務仍應完成, failed: %v", db.failed)
	}
	report := string(scratch.artifacts["report.md"])
	// 原始文字保留、解析失敗記錄於 error，兩者並存
	if !strings.Contains(report, "這不是 JSON 的原始回應") {
		t.Errorf("降級回應的原始文字應保留在報告中:\n%s", report)
	}
	if !strings.Contains(report, "分析錯誤") || !strings.Contains(report, `"error_message"`) {
		t.Errorf("解析失敗應記錄在資產的 error 欄位:\n%s", report)
	}
}

func TestUnstructuredVideoResponseRecordsError(t *testing.T) {
	db := newFakeDB(pendingJob("job-9"))
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	understanding := &fakeUnderstanding{
		imageResult: &gemini.ImageAnalysis{ExtractedText: "圖中文字", Structured: true},
		videoResult: &gemini.VideoAnalysis{Description: "無法解析的原始回應", Structured: false},
		docPages:    []gemini.DocumentPage{{PageNumber: 1, ExtractedText: "第一頁"}},
	}
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.7"), pageCount: 2}
	svc := newTestService(t, db, scratch, understanding, renderer)

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	if _, ok := db.completed["job-9"]; !ok {
		t.Fatalf("任務仍應完成, failed: %v", db.failed)
	}
	report := string(scratch.artifacts["report.md"])
	if !strings.Contains(report, "無法解析的原始回應") || !strings.Contains(report, "分析錯誤") {
		t.Errorf("影片降級回應應保留內容並記錄 error:\n%s", report)
	}
	// 逐字稿即使降級仍為非 null 的空字串
	if !strings.Contains(report, "逐字稿：") {
		t.Errorf("降級影片的逐字稿欄位應以空字串呈現:\n%s", report)
	}
}

func TestRenderPageCountMismatchLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	db := newFakeDB(pendingJob("job-10"))
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	understanding := &fakeUnderstanding{
		imageResult: &gemini.ImageAnalysis{ExtractedText: "文字", Structured: true},
		videoResult: &gemini.VideoAnalysis{Transcription: "稿", Structured: true},
		docPages:    []gemini.DocumentPage{{PageNumber: 1, ExtractedText: "第一頁"}},
	}
	// 測試容器有 2 張投影片，渲染回報 3 頁
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.7"), pageCount: 3}
	svc := newTestService(t, db, scratch, understanding, renderer)

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	if !strings.Contains(buf.String(), "不一致") {
		t.Error("頁數與投影片數不一致時應記錄警告")
	}
	// 不一致僅是警告，任務照常以渲染頁數完成
	if _, ok := db.completed["job-10"]; !ok {
		t.Fatalf("任務仍應完成, failed: %v", db.failed)
	}
}

func TestProcessPendingJobsFailsWhenDocumentAnalysisFails(t *testing.T) {
	db := newFakeDB(pendingJob("job-4"))
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	understanding := &fakeUnderstanding{
		imageResult: &gemini.ImageAnalysis{ExtractedText: "圖中文字", Structured: true},
		videoResult: &gemini.VideoAnalysis{Transcription: "", Structured: true},
		docErr:      fmt.Errorf("配額用盡"),
	}
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.7"), pageCount: 1}
	svc := newTestService(t, db, scratch, understanding, renderer)

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	detail, ok := db.failed["job-4"]
	if !ok {
		t.Fatalf("整體文件分析失敗時任務應標記為 failed, completed: %v", db.completed)
	}
	if !strings.Contains(detail, "整體文件分析失敗") || !strings.Contains(detail, "配額用盡") {
		t.Errorf("錯誤訊息應包含具體原因: %q", detail)
	}
}

func TestProcessPendingJobsFailsOnInvalidContainer(t *testing.T) {
	db := newFakeDB(pendingJob("job-5"))
	scratch := newFakeScratch(t, "deck.pptx", []byte("這不是一個 ZIP 容器"))
	svc := newTestService(t, db, scratch, &fakeUnderstanding{}, &fakeRenderer{})

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	detail, ok := db.failed["job-5"]
	if !ok {
		t.Fatal("無效容器應使任務標記為 failed")
	}
	if !strings.Contains(detail, "容器格式無效") {
		t.Errorf("錯誤訊息 = %q, 應指出容器格式無效", detail)
	}
}

func TestProcessPendingJobsSkipsUnclaimableJob(t *testing.T) {
	db := newFakeDB(pendingJob("job-6"))
	db.claimFail = true
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	svc := newTestService(t, db, scratch, &fakeUnderstanding{}, &fakeRenderer{})

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}
	if len(db.completed) != 0 || len(db.failed) != 0 {
		t.Errorf("認領失敗的任務不應被處理: completed=%v failed=%v", db.completed, db.failed)
	}
}

func TestNewAnalyzeServiceNilGuards(t *testing.T) {
	db := newFakeDB()
	scratch := newFakeScratch(t, "deck.pptx", nil)
	u := &fakeUnderstanding{}
	r := &fakeRenderer{}

	if _, err := NewAnalyzeService(nil, db, scratch, u, r); err == nil {
		t.Error("設定為 nil 時應回傳錯誤")
	}
	if _, err := NewAnalyzeService(testConfig(), nil, scratch, u, r); err == nil {
		t.Error("DBStore 為 nil 時應回傳錯誤")
	}
	if _, err := NewAnalyzeService(testConfig(), db, nil, u, r); err == nil {
		t.Error("ScratchStorage 為 nil 時應回傳錯誤")
	}
	if _, err := NewAnalyzeService(testConfig(), db, scratch, nil, r); err == nil {
		t.Error("理解服務客戶端為 nil 時應回傳錯誤")
	}
	if _, err := NewAnalyzeService(testConfig(), db, scratch, u, nil); err == nil {
		t.Error("渲染服務客戶端為 nil 時應回傳錯誤")
	}
}

// 渲染輸入必須是移除影片的容器副本
func TestRenderInputHasVideosStripped(t *testing.T) {
	db := newFakeDB(pendingJob("job-7"))
	scratch := newFakeScratch(t, "deck.pptx", buildDeckZip(t, nil))
	understanding := &fakeUnderstanding{
		imageResult: &gemini.ImageAnalysis{ExtractedText: "文字", Structured: true},
		videoResult: &gemini.VideoAnalysis{Transcription: "稿", Structured: true},
		docPages:    []gemini.DocumentPage{{PageNumber: 1, ExtractedText: "第一頁"}},
	}
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.7"), pageCount: 1}
	svc := newTestService(t, db, scratch, understanding, renderer)

	if err := svc.ProcessPendingJobs(); err != nil {
		t.Fatalf("ProcessPendingJobs 失敗: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(renderer.lastInput), int64(len(renderer.lastInput)))
	if err != nil {
		t.Fatalf("渲染輸入不是合法的 ZIP: %v", err)
	}
	for _, f := range reader.File {
		if f.Name == "ppt/media/video1.mp4" {
			t.Error("渲染輸入不應包含影片 part")
		}
	}
	// 影片仍要被提取分析
	if understanding.videoCalls != 1 {
		t.Errorf("影片分析呼叫次數 = %d, 預期 1", understanding.videoCalls)
	}
}
