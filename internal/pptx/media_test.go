package pptx

import (
	"os"
	"path/filepath"
	"testing"

	"DeckScope-admin/internal/models"
)

func buildMediaTestContainer(t *testing.T) *Container {
	t.Helper()
	data := buildTestZip(t, []struct{ name, content string }{
		{"ppt/slides/slide1.xml", "<p:sld/>"},
		{"ppt/slides/_rels/slide1.xml.rels", `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image1.png"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/video" Target="../media/video1.mp4"/>
</Relationships>`},
		{"ppt/media/image1.png", "PNG1"},
		{"ppt/media/image2.jpg", "JPG2"},
		{"ppt/media/video1.mp4", "MP4"},
		{"ppt/media/audio1.wav", "WAV"},
		{"ppt/media/thumbnail.emf", "EMF"},
	})
	c, err := Open(data)
	if err != nil {
		t.Fatalf("Open 失敗: %v", err)
	}
	return c
}

func TestExtractMedia(t *testing.T) {
	c := buildMediaTestContainer(t)
	scratchDir := t.TempDir()

	result, err := ExtractMedia(c, scratchDir)
	if err != nil {
		t.Fatalf("ExtractMedia 失敗: %v", err)
	}

	if len(result.Images) != 2 {
		t.Fatalf("圖片數量 = %d, 預期 2", len(result.Images))
	}
	if len(result.Videos) != 1 {
		t.Fatalf("影片數量 = %d, 預期 1", len(result.Videos))
	}

	// 容器內原始順序保留
	if result.Images[0].Filename != "image1.png" || result.Images[1].Filename != "image2.jpg" {
		t.Errorf("圖片順序錯誤: %v", result.Images)
	}

	// 擁有者標註：image1 與 video1 屬 slide1，image2 無 relationship 為未知
	if result.Images[0].OwningSlideIndex != 1 {
		t.Errorf("image1.png 擁有者 = %d, 預期 1", result.Images[0].OwningSlideIndex)
	}
	if result.Images[1].OwningSlideIndex != models.UnknownSlideIndex {
		t.Errorf("image2.jpg 擁有者 = %d, 預期未知 (%d)", result.Images[1].OwningSlideIndex, models.UnknownSlideIndex)
	}
	if result.Videos[0].OwningSlideIndex != 1 {
		t.Errorf("video1.mp4 擁有者 = %d, 預期 1", result.Videos[0].OwningSlideIndex)
	}

	// 檔案內容確實落地到暫存目錄
	data, err := os.ReadFile(filepath.Join(scratchDir, "media", "image1.png"))
	if err != nil {
		t.Fatalf("讀取提取後的媒體檔失敗: %v", err)
	}
	if string(data) != "PNG1" {
		t.Errorf("提取後的媒體內容 = %q, 預期 %q", data, "PNG1")
	}

	// 允許清單外的副檔名不落地
	if _, err := os.Stat(filepath.Join(scratchDir, "media", "audio1.wav")); !os.IsNotExist(err) {
		t.Error("允許清單外的媒體不應被提取")
	}
}

func TestExtractMediaRejectsEmptyScratchDir(t *testing.T) {
	c := buildMediaTestContainer(t)
	if _, err := ExtractMedia(c, ""); err == nil {
		t.Fatal("空暫存目錄應回傳錯誤")
	}
}

func TestStripVideos(t *testing.T) {
	c := buildMediaTestContainer(t)

	stripped := StripVideos(c)
	if stripped.HasEntry("ppt/media/video1.mp4") {
		t.Error("影片 part 應被移除")
	}
	for _, keep := range []string{
		"ppt/media/image1.png",
		"ppt/media/image2.jpg",
		"ppt/media/audio1.wav",
		"ppt/slides/slide1.xml",
	} {
		if !stripped.HasEntry(keep) {
			t.Errorf("part '%s' 不應被移除", keep)
		}
	}
	// 正本容器不受影響
	if !c.HasEntry("ppt/media/video1.mp4") {
		t.Error("正本容器的影片 part 被改動")
	}
}
