package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"DeckScope-admin/internal/models"
)

// NormalizePages 將文件分析回傳的頁面結果整理為 1 起算、在 [1, pageCount] 上
// 連續無缺漏的序列：缺頁以空的 PageAnalysis 補齊，頁碼超界或重複的結果
// 依序填入尚未佔用的頁位，內容絕不丟棄。
func NormalizePages(pages []models.PageAnalysis, pageCount int) []models.PageAnalysis {
	if pageCount < 1 {
		pageCount = 1
	}
	normalized := make([]models.PageAnalysis, pageCount)
	taken := make([]bool, pageCount+1)

	var overflow []models.PageAnalysis
	for _, p := range pages {
		if p.PageNumber >= 1 && p.PageNumber <= pageCount && !taken[p.PageNumber] {
			normalized[p.PageNumber-1] = p
			taken[p.PageNumber] = true
		} else {
			overflow = append(overflow, p)
		}
	}
	next := 1
	for _, p := range overflow {
		for next <= pageCount && taken[next] {
			next++
		}
		if next > pageCount {
			break
		}
		p.PageNumber = next
		normalized[next-1] = p
		taken[next] = true
	}
	for i := range normalized {
		normalized[i].PageNumber = i + 1
	}
	return normalized
}

// includeInReport 判斷一筆媒體分析是否出現在最終報告。
// 圖片：分析成功但擷取不到任何文字時排除（分析照常執行，只省略報告行）；
// 分析失敗的圖片保留，錯誤本身就是報告內容。影片一律保留，即使逐字稿為空，
// 描述與場景仍有價值。
func includeInReport(a models.AssetAnalysis) bool {
	if a.Kind == models.MediaKindVideo {
		return true
	}
	if a.HasError() {
		return true
	}
	return a.ExtractedText != nil && a.ExtractedText.Valid && strings.TrimSpace(a.ExtractedText.String) != ""
}

// AggregateReport 將頁面分析與媒體分析合併為單一報告。
// 頁面依頁碼遞增；各頁掛載的媒體維持提取時的順序（圖片在前、影片在後，
// 同類之內依容器順序），不重新排序；無法歸屬任何頁面的媒體集中於
// UnassignedMedia，絕不無聲丟棄。
func AggregateReport(jobID string, sourceFilename string, pages []models.PageAnalysis, assets []models.AssetAnalysis, pageCount int) *models.Report {
	normalized := NormalizePages(pages, pageCount)

	report := &models.Report{
		JobID:          jobID,
		SourceFilename: sourceFilename,
		PageCount:      len(normalized),
		Pages:          make([]models.ReportPage, len(normalized)),
	}
	for i, p := range normalized {
		report.Pages[i] = models.ReportPage{Page: p}
	}
	for _, a := range assets {
		if !includeInReport(a) {
			continue
		}
		idx := a.OwningSlideIndex
		if idx >= 1 && idx <= len(normalized) {
			report.Pages[idx-1].Assets = append(report.Pages[idx-1].Assets, a)
		} else {
			report.UnassignedMedia = append(report.UnassignedMedia, a)
		}
	}
	return report
}

// RenderReportArtifact 將報告序列化為單一產出檔案：
// 前半為人類可讀的 Markdown 版本，後半為機器可讀的 JSON 區塊，
// 讓同一次執行的結果能同時供人與下游系統消費。
func RenderReportArtifact(report *models.Report) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# 簡報分析報告：%s\n\n", report.SourceFilename))
	sb.WriteString(fmt.Sprintf("任務編號：%s\n\n", report.JobID))
	sb.WriteString(fmt.Sprintf("總頁數：%d\n\n", report.PageCount))

	for _, rp := range report.Pages {
		sb.WriteString(fmt.Sprintf("## 第 %d 頁\n\n", rp.Page.PageNumber))
		if rp.Page.Title != nil && rp.Page.Title.Valid && rp.Page.Title.String != "" {
			sb.WriteString(fmt.Sprintf("標題：%s\n\n", rp.Page.Title.String))
		}
		if strings.TrimSpace(rp.Page.ExtractedText) != "" {
			sb.WriteString(rp.Page.ExtractedText)
			sb.WriteString("\n\n")
		}
		for _, bp := range rp.Page.BulletPoints {
			sb.WriteString(fmt.Sprintf("- %s\n", bp))
		}
		if len(rp.Page.BulletPoints) > 0 {
			sb.WriteString("\n")
		}
		if len(rp.Page.KeyTopics) > 0 {
			sb.WriteString(fmt.Sprintf("主題：%s\n\n", strings.Join(rp.Page.KeyTopics, "、")))
		}
		for _, a := range rp.Assets {
			sb.WriteString(fmt.Sprintf("### 媒體：%s (%s)\n\n", a.AssetFilename, a.Kind))
			writeAssetLines(&sb, a)
		}
	}

	if len(report.UnassignedMedia) > 0 {
		sb.WriteString("## 未歸屬媒體\n\n")
		for _, a := range report.UnassignedMedia {
			sb.WriteString(fmt.Sprintf("### 媒體：%s (%s)\n\n", a.AssetFilename, a.Kind))
			writeAssetLines(&sb, a)
		}
	}

	machineReadable, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化報告 JSON 失敗: %w", err)
	}
	sb.WriteString("## 機器可讀資料\n\n```json\n")
	sb.Write(machineReadable)
	sb.WriteString("\n```\n")

	return []byte(sb.String()), nil
}

// writeAssetLines 輸出單筆媒體分析的可讀摘要行
func writeAssetLines(sb *strings.Builder, a models.AssetAnalysis) {
	if a.ExtractedText != nil && a.ExtractedText.Valid && a.ExtractedText.String != "" {
		sb.WriteString(fmt.Sprintf("擷取文字：%s\n\n", a.ExtractedText.String))
	}
	if a.Description != nil && a.Description.Valid && a.Description.String != "" {
		sb.WriteString(fmt.Sprintf("描述：%s\n\n", a.Description.String))
	}
	if a.Transcription != nil && a.Transcription.Valid {
		sb.WriteString(fmt.Sprintf("逐字稿：%s\n\n", a.Transcription.String))
	}
	if len(a.Scenes) > 0 {
		sb.WriteString(fmt.Sprintf("場景：%s\n\n", strings.Join(a.Scenes, "；")))
	}
	if a.HasError() {
		sb.WriteString(fmt.Sprintf("分析錯誤：%s\n\n", a.ErrorMessage.String))
	}
}
