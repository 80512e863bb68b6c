package pptx

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"DeckScope-admin/internal/models"
)

// 媒體分類僅依副檔名比對這兩份固定允許清單；清單外的副檔名直接忽略，不視為錯誤。
var (
	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".ts": true, ".flv": true, ".wmv": true,
	}
)

// ExtractResult 是媒體提取的結果，影像與影片各自依容器內原始順序排列。
// 兩類刻意分組（分析流程先處理所有圖片、再處理所有影片），因此跨類之間
// 不保留容器順序，僅同類之內保序。
type ExtractResult struct {
	Images []models.MediaAsset
	Videos []models.MediaAsset
}

// ExtractMedia 走訪容器的媒體目錄，將每個允許清單內的資產寫入任務暫存目錄，
// 並標註其所屬投影片編號（無法解析時為 models.UnknownSlideIndex，絕不丟棄）。
// 暫存路徑位於 scratchDir 之下，呼叫端以 Job ID 命名 scratchDir 確保並行任務互不碰撞。
func ExtractMedia(c *Container, scratchDir string) (*ExtractResult, error) {
	if scratchDir == "" {
		return nil, fmt.Errorf("暫存目錄不得為空")
	}
	mediaDir := filepath.Join(scratchDir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("無法建立媒體暫存目錄 '%s': %w", mediaDir, err)
	}

	owners := ResolveMediaOwners(c)
	result := &ExtractResult{}

	for _, name := range c.ListEntries(mediaPrefix) {
		filename := path.Base(name)
		ext := strings.ToLower(path.Ext(filename))

		var kind models.MediaKind
		switch {
		case imageExtensions[ext]:
			kind = models.MediaKindImage
		case videoExtensions[ext]:
			kind = models.MediaKindVideo
		default:
			log.Printf("資訊：[Pptx] 媒體 '%s' 副檔名不在允許清單內，略過。\n", filename)
			continue
		}

		data, err := c.ReadEntry(name)
		if err != nil {
			return nil, fmt.Errorf("讀取媒體 part '%s' 失敗: %w", name, err)
		}
		scratchPath := filepath.Join(mediaDir, filename)
		if err := os.WriteFile(scratchPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("寫入媒體暫存檔 '%s' 失敗: %w", scratchPath, err)
		}

		asset := models.MediaAsset{
			Filename:         filename,
			Kind:             kind,
			ScratchPath:      scratchPath,
			OwningSlideIndex: owners[filename], // 查無時為零值，即 UnknownSlideIndex
		}
		if asset.Kind == models.MediaKindImage {
			result.Images = append(result.Images, asset)
		} else {
			result.Videos = append(result.Videos, asset)
		}
		log.Printf("資訊：[Pptx] 提取媒體 '%s' (類型: %s, 投影片: %s)\n",
			filename, kind, slideIndexLabel(asset.OwningSlideIndex))
	}

	log.Printf("資訊：[Pptx] 媒體提取完成，共 %d 張圖片、%d 部影片。\n",
		len(result.Images), len(result.Videos))
	return result, nil
}

// StripVideos 回傳一個移除所有影片 part 的容器副本，供渲染服務使用。
// 大型影片串流會拖慢外部渲染器或超出其輸入大小上限；這個副本用完即丟，
// 絕不取代正本容器。
func StripVideos(c *Container) *Container {
	return c.WithoutEntries(func(p string) bool {
		if !strings.HasPrefix(p, mediaPrefix) {
			return false
		}
		return videoExtensions[strings.ToLower(path.Ext(p))]
	})
}
