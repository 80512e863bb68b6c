package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client 結構用於與 Gemini API 互動
type Client struct {
	visionModel   *genai.GenerativeModel
	documentModel *genai.GenerativeModel
}

// ImageAnalysis 是單張圖片的理解結果。Structured 為 false 表示回應無法解析為
// 預期結構，ExtractedText 內為未經結構化的原始回應（軟失敗，不丟棄內容）。
type ImageAnalysis struct {
	ExtractedText string `json:"extracted_text"`
	Description   string `json:"description"`
	Language      string `json:"language"`
	Structured    bool   `json:"-"`
}

// VideoAnalysis 是單部影片的理解結果
type VideoAnalysis struct {
	Transcription string   `json:"transcription"`
	Description   string   `json:"description"`
	Scenes        []string `json:"scenes"`
	Language      string   `json:"language"`
	Structured    bool     `json:"-"`
}

// DocumentPage 是整份文件分析回應中的一頁
type DocumentPage struct {
	PageNumber           int      `json:"page_number"`
	ExtractedText        string   `json:"extracted_text"`
	Title                string   `json:"title"`
	BulletPoints         []string `json:"bullet_points"`
	VisualElementSummary string   `json:"visual_element_summary"`
	KeyTopics            []string `json:"key_topics"`
	Language             string   `json:"language"`
}

// documentAnalysisResponse 對應文件分析 Prompt 要求的回應結構
type documentAnalysisResponse struct {
	Pages []DocumentPage `json:"pages"`
}

// NewClient 建立一個 Gemini 客戶端實例
func NewClient(apiKey string, visionModelName string, documentModelName string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API Key 不得為空")
	}
	if visionModelName == "" {
		visionModelName = "gemini-1.5-flash-latest"
		log.Printf("警告：[Gemini Client] 未提供視覺分析模型名稱，使用預設值: %s\n", visionModelName)
	}
	if documentModelName == "" {
		documentModelName = "gemini-1.5-pro-latest"
		log.Printf("警告：[Gemini Client] 未提供文件分析模型名稱，使用預設值: %s\n", documentModelName)
	}

	ctx := context.Background()
	genaiSDKClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("無法建立 Gemini GenAI SDK 客戶端: %w", err)
	}

	visModel := genaiSDKClient.GenerativeModel(visionModelName)
	var visGenConfig genai.GenerationConfig
	visGenConfig.ResponseMIMEType = "application/json"
	visModel.GenerationConfig = visGenConfig
	log.Printf("資訊：[Gemini Client] 視覺分析模型 '%s' 初始化成功。\n", visionModelName)

	docModel := genaiSDKClient.GenerativeModel(documentModelName)
	var docGenConfig genai.GenerationConfig
	docGenConfig.ResponseMIMEType = "application/json"
	docModel.GenerationConfig = docGenConfig
	log.Printf("資訊：[Gemini Client] 文件分析模型 '%s' 初始化成功。\n", documentModelName)

	return &Client{
		visionModel:   visModel,
		documentModel: docModel,
	}, nil
}

// generate 發送請求並將回應的所有文字 part 串接回傳
func (c *Client) generate(ctx context.Context, model *genai.GenerativeModel, label string, parts ...genai.Part) (string, error) {
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("Gemini API %s GenerateContent 失敗: %w", label, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("Gemini API %s 回應無效或為空 (nil response or no candidates)", label)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			if candidate.SafetyRatings != nil {
				for _, rating := range candidate.SafetyRatings {
					log.Printf("警告：[Gemini Client] 安全評級 (%s) - Category: %s, Probability: %s\n", label, rating.Category, rating.Probability)
				}
			}
			return "", fmt.Errorf("Gemini API %s 回應無效或內容被阻止，原因: %s", label, candidate.FinishReason.String())
		}
		return "", fmt.Errorf("Gemini API %s 回應無效或為空 (no content parts, FinishReason: %s)", label, candidate.FinishReason.String())
	}
	var responseTextBuilder strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseTextBuilder.WriteString(string(txt))
		} else {
			log.Printf("警告：[Gemini Client] %s - 收到非預期的 Part 類型: %T\n", label, part)
		}
	}
	raw := responseTextBuilder.String()
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("Gemini API %s 回傳的內容為空", label)
	}
	return raw, nil
}

// AnalyzeImage 向 Gemini API 發送單張圖片進行文字擷取與視覺描述。
// 回應無法解析為預期 JSON 結構時視為軟失敗：原始回應文字原樣放入
// ExtractedText，Structured 標記為 false，內容絕不丟棄。
func (c *Client) AnalyzeImage(ctx context.Context, imagePath string, prompt string) (*ImageAnalysis, error) {
	log.Printf("資訊：[Gemini Client] AnalyzeImage - 開始分析圖片: %s\n", imagePath)
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("讀取圖片檔案 %s 失敗: %w", imagePath, err)
	}
	blob := genai.Blob{MIMEType: imageMIMEType(imagePath), Data: imageData}
	raw, err := c.generate(ctx, c.visionModel, "圖片分析", genai.Text(prompt), blob)
	if err != nil {
		return nil, err
	}

	cleaned := cleanJSONString(raw)
	var analysis ImageAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		log.Printf("警告：[Gemini Client] AnalyzeImage - 回應無法解析為預期結構，降級為未結構化文字: %v\n", err)
		return &ImageAnalysis{ExtractedText: strings.TrimSpace(raw), Structured: false}, nil
	}
	analysis.Structured = true
	log.Printf("資訊：[Gemini Client] 圖片 '%s' JSON 回應解析成功。\n", imagePath)
	return &analysis, nil
}

// AnalyzeVideo 向 Gemini API 發送影片進行逐字稿與場景分析。
// 與 AnalyzeImage 相同，無法解析的回應降級為未結構化文字而非錯誤。
func (c *Client) AnalyzeVideo(ctx context.Context, videoPath string, prompt string) (*VideoAnalysis, error) {
	log.Printf("資訊：[Gemini Client] AnalyzeVideo - 開始分析影片: %s\n", videoPath)
	videoData, err := os.ReadFile(videoPath)
	if err != nil {
		return nil, fmt.Errorf("讀取影片檔案 %s 失敗: %w", videoPath, err)
	}
	blob := genai.Blob{MIMEType: videoMIMEType(videoPath), Data: videoData}
	raw, err := c.generate(ctx, c.visionModel, "影片分析", genai.Text(prompt), blob)
	if err != nil {
		return nil, err
	}

	cleaned := cleanJSONString(raw)
	var analysis VideoAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		log.Printf("警告：[Gemini Client] AnalyzeVideo - 回應無法解析為預期結構，降級為未結構化文字: %v\n", err)
		return &VideoAnalysis{Description: strings.TrimSpace(raw), Structured: false}, nil
	}
	analysis.Structured = true
	log.Printf("資訊：[Gemini Client] 影片 '%s' JSON 回應解析成功。\n", videoPath)
	return &analysis, nil
}

// AnalyzeDocument 向 Gemini API 發送整份渲染後的 PDF 進行逐頁分析。
// assetContextJSON 是前兩階段媒體分析結果的 JSON 摘要，讓整體分析能解釋
// 各媒體「為何重要」而不僅是「包含什麼」；可為空字串。
// 回應無法解析為逐頁結構時降級：原始回應全文作為第一頁的未結構化文字回傳。
func (c *Client) AnalyzeDocument(ctx context.Context, pdfPath string, prompt string, assetContextJSON string) ([]DocumentPage, error) {
	log.Printf("資訊：[Gemini Client] AnalyzeDocument - 開始分析文件: %s\n", pdfPath)
	pdfData, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("讀取 PDF 檔案 %s 失敗: %w", pdfPath, err)
	}

	parts := []genai.Part{genai.Text(prompt)}
	if strings.TrimSpace(assetContextJSON) != "" {
		parts = append(parts, genai.Text("已知的媒體資產分析結果如下（JSON）：\n"+assetContextJSON))
	}
	parts = append(parts, genai.Blob{MIMEType: "application/pdf", Data: pdfData})

	raw, err := c.generate(ctx, c.documentModel, "文件分析", parts...)
	if err != nil {
		return nil, err
	}

	cleaned := cleanJSONString(raw)
	var resp documentAnalysisResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err == nil && len(resp.Pages) > 0 {
		log.Printf("資訊：[Gemini Client] 文件 '%s' JSON 回應解析成功，共 %d 頁。\n", pdfPath, len(resp.Pages))
		return resp.Pages, nil
	}
	// 部分模型版本會直接回傳頁面陣列而非包一層物件
	var pages []DocumentPage
	if err := json.Unmarshal([]byte(cleaned), &pages); err == nil && len(pages) > 0 {
		log.Printf("資訊：[Gemini Client] 文件 '%s' JSON 回應（陣列形式）解析成功，共 %d 頁。\n", pdfPath, len(pages))
		return pages, nil
	}
	log.Printf("警告：[Gemini Client] AnalyzeDocument - 回應無法解析為逐頁結構，降級為單頁未結構化文字。\n")
	return []DocumentPage{{PageNumber: 1, ExtractedText: strings.TrimSpace(raw)}}, nil
}

// imageMIMEType 依副檔名判斷圖片 MIME 類型
func imageMIMEType(imagePath string) string {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		log.Printf("警告：[Gemini Client] 未知的圖片副檔名 '%s'\n", filepath.Ext(imagePath))
		return "image/png"
	}
}

// videoMIMEType 依副檔名判斷影片 MIME 類型
func videoMIMEType(videoPath string) string {
	switch strings.ToLower(filepath.Ext(videoPath)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mpeg", ".mpg":
		return "video/mpeg"
	case ".avi":
		return "video/x-msvideo"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".flv":
		return "video/x-flv"
	case ".webm":
		return "video/webm"
	default:
		log.Printf("警告：[Gemini Client] 未知的影片副檔名 '%s'\n", filepath.Ext(videoPath))
		return "video/mp4"
	}
}

// cleanJSONString 清理從 LLM 收到的可能包含雜質的 JSON 字串
func cleanJSONString(rawResponse string) string {
	cleaned := strings.TrimSpace(rawResponse)

	// 移除可能的 markdown 代碼塊標記
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		if strings.HasSuffix(cleaned, "```") {
			cleaned = strings.TrimSuffix(cleaned, "```")
		}
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		if strings.HasSuffix(cleaned, "```") {
			cleaned = strings.TrimSuffix(cleaned, "```")
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	// 尋找最外層的 JSON 結構
	var potentialJSON string
	firstBrace := strings.Index(cleaned, "{")
	lastBrace := strings.LastIndex(cleaned, "}")
	firstBracket := strings.Index(cleaned, "[")
	lastBracket := strings.LastIndex(cleaned, "]")
	isObject := firstBrace != -1 && lastBrace != -1 && lastBrace > firstBrace
	isArray := firstBracket != -1 && lastBracket != -1 && lastBracket > firstBracket

	if isObject && (!isArray || (isArray && firstBrace < firstBracket)) {
		potentialJSON = cleaned[firstBrace : lastBrace+1]
	} else if isArray && (!isObject || (isObject && firstBracket < firstBrace)) {
		potentialJSON = cleaned[firstBracket : lastBracket+1]
	} else {
		potentialJSON = cleaned
	}
	potentialJSON = strings.TrimSpace(potentialJSON)

	// 處理 UTF-8 編碼問題
	if !utf8.ValidString(potentialJSON) {
		log.Println("警告：[Gemini Client Clean] 回應包含無效的 UTF-8 字元，嘗試替換...")
		potentialJSON = strings.ToValidUTF8(potentialJSON, "")
	}

	// 移除控制字元
	var sb strings.Builder
	for _, r := range potentialJSON {
		if (r >= 0 && r < 9) || (r > 10 && r < 13) || (r > 13 && r < 32) || r == 127 {
			continue
		}
		sb.WriteRune(r)
	}
	finalCleaned := sb.String()
	finalCleaned = strings.TrimPrefix(finalCleaned, "\uFEFF")

	return finalCleaned
}
