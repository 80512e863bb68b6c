// Package renderer 封裝外部文件轉 PDF 渲染服務的 HTTP 客戶端。
// 契約：輸入一個簡報容器（位元組），輸出一份 PDF（位元組）加頁數；其餘皆為服務內部細節。
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"DeckScope-admin/internal/config"
)

// pageCountHeader 是渲染服務回應中攜帶頁數的標頭
const pageCountHeader = "X-Page-Count"

// Client 結構用於與渲染服務互動
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 建立一個渲染服務客戶端實例
func NewClient(cfg config.RendererClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("渲染服務 baseURL 不得為空")
	}
	timeout := time.Duration(cfg.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	log.Printf("資訊：[Renderer Client] 初始化成功，渲染服務位址: %s\n", cfg.BaseURL)
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// RenderPDF 將容器位元組上傳渲染服務，回傳 PDF 位元組與頁數。
// 渲染失敗對任務而言是致命錯誤：沒有分頁文件就無法產出頁面結構化報告。
func (c *Client) RenderPDF(ctx context.Context, containerData []byte, filename string) ([]byte, int, error) {
	if len(containerData) == 0 {
		return nil, 0, fmt.Errorf("要渲染的容器位元組不得為空")
	}
	log.Printf("資訊：[Renderer Client] 開始渲染 '%s' (大小: %d 位元組)\n", filename, len(containerData))

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("document", filename)
	if err != nil {
		return nil, 0, fmt.Errorf("建立 multipart 欄位失敗: %w", err)
	}
	if _, err := part.Write(containerData); err != nil {
		return nil, 0, fmt.Errorf("寫入 multipart 內容失敗: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("完成 multipart 內容失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", body)
	if err != nil {
		return nil, 0, fmt.Errorf("建立渲染請求失敗: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("呼叫渲染服務失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, 0, fmt.Errorf("渲染服務回傳非預期狀態 %d: %s", resp.StatusCode, string(errBody))
	}

	pdfData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("讀取渲染服務回應失敗: %w", err)
	}
	if len(pdfData) == 0 {
		return nil, 0, fmt.Errorf("渲染服務回傳了空的 PDF")
	}

	pageCount := 0
	if header := resp.Header.Get(pageCountHeader); header != "" {
		if n, convErr := strconv.Atoi(header); convErr == nil && n > 0 {
			pageCount = n
		} else {
			log.Printf("警告：[Renderer Client] 無法解析 %s 標頭 '%s'，改為掃描 PDF。\n", pageCountHeader, header)
		}
	}
	if pageCount == 0 {
		pageCount = CountPDFPages(pdfData)
	}
	if pageCount == 0 {
		return nil, 0, fmt.Errorf("無法判定渲染結果的頁數")
	}

	log.Printf("資訊：[Renderer Client] 渲染完成，PDF 大小: %d 位元組，共 %d 頁。\n", len(pdfData), pageCount)
	return pdfData, pageCount, nil
}

// CountPDFPages 掃描 PDF 位元組中的頁面物件數量。
// 只計 "/Type /Page" 物件，排除 "/Type /Pages" 樹節點；作為標頭缺失時的後備手段。
func CountPDFPages(pdfData []byte) int {
	count := 0
	for _, marker := range [][]byte{[]byte("/Type /Page"), []byte("/Type/Page")} {
		offset := 0
		n := 0
		for {
			idx := bytes.Index(pdfData[offset:], marker)
			if idx < 0 {
				break
			}
			after := offset + idx + len(marker)
			// 排除 /Type /Pages
			if after < len(pdfData) && pdfData[after] == 's' {
				offset = after
				continue
			}
			n++
			offset = after
		}
		if n > count {
			count = n
		}
	}
	return count
}
