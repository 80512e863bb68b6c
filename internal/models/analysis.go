package models

// PageAnalysis 是整份文件分析回傳的單頁結果。
// PageNumber 為 1 起算且在 [1, pageCount] 上連續無缺漏。
type PageAnalysis struct {
	PageNumber           int             `json:"page_number"`
	ExtractedText        string          `json:"extracted_text"`
	Title                *JsonNullString `json:"title,omitempty"`
	BulletPoints         []string        `json:"bullet_points,omitempty"`
	VisualElementSummary *JsonNullString `json:"visual_element_summary,omitempty"`
	KeyTopics            []string        `json:"key_topics,omitempty"`
	Language             *JsonNullString `json:"language,omitempty"`
}

// AssetAnalysis 是單一媒體資產的理解服務分析結果。
// 分析失敗時 ErrorMessage 會被填入，該筆結果仍會保留，不會中斷整體流程。
type AssetAnalysis struct {
	AssetFilename    string          `json:"asset_filename"`
	Kind             MediaKind       `json:"kind"`
	OwningSlideIndex int             `json:"owning_slide_index"`
	ExtractedText    *JsonNullString `json:"extracted_text,omitempty"`
	Description      *JsonNullString `json:"description,omitempty"`
	Transcription    *JsonNullString `json:"transcription,omitempty"`
	Scenes           []string        `json:"scenes,omitempty"`
	Language         *JsonNullString `json:"language,omitempty"`
	ErrorMessage     *JsonNullString `json:"error_message,omitempty"`
}

// HasError 回傳該資產分析是否記錄了錯誤
func (a *AssetAnalysis) HasError() bool {
	return a.ErrorMessage != nil && a.ErrorMessage.Valid
}

// ReportPage 是最終報告中的一頁：頁面分析加上掛載於該頁的媒體分析結果
type ReportPage struct {
	Page   PageAnalysis    `json:"page"`
	Assets []AssetAnalysis `json:"assets"`
}

// Report 是整個分析流程的終端產出，依頁碼排序
type Report struct {
	JobID           string          `json:"job_id"`
	SourceFilename  string          `json:"source_filename"`
	PageCount       int             `json:"page_count"`
	Pages           []ReportPage    `json:"pages"`
	UnassignedMedia []AssetAnalysis `json:"unassigned_media"`
}
