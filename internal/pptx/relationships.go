package pptx

import (
	"encoding/xml"
	"fmt"
	"log"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	slideRelsPrefix = "ppt/slides/_rels/"
	mediaPrefix     = "ppt/media/"
)

var slideRelsPattern = regexp.MustCompile(`^ppt/slides/_rels/slide(\d+)\.xml\.rels$`)

// relationshipsXML 對應 .rels part 的 XML 結構
type relationshipsXML struct {
	XMLName       xml.Name `xml:"Relationships"`
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// ResolveMediaOwners 走訪每張投影片的 relationship part，建立媒體檔名到所屬投影片編號的映射。
// 投影片編號為 1 起算。同一媒體被多張投影片引用時，依投影片編號遞增順序第一個引用者勝出
// （已知的單值簡化；需要多重擁有者時應將 value 擴充為集合）。
// 個別 relationship part 損毀或缺失時僅記錄警告，該媒體退化為未知擁有者，不中斷流程。
func ResolveMediaOwners(c *Container) map[string]int {
	owners := make(map[string]int)

	type slideRels struct {
		index int
		path  string
	}
	var slides []slideRels
	for _, name := range c.ListEntries(slideRelsPrefix) {
		m := slideRelsPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 {
			continue
		}
		slides = append(slides, slideRels{index: idx, path: name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].index < slides[j].index })

	for _, slide := range slides {
		data, err := c.ReadEntry(slide.path)
		if err != nil {
			log.Printf("警告：[Pptx] 讀取投影片 relationship part '%s' 失敗: %v\n", slide.path, err)
			continue
		}
		var rels relationshipsXML
		if err := xml.Unmarshal(data, &rels); err != nil {
			log.Printf("警告：[Pptx] 解析投影片 relationship part '%s' 失敗，該投影片的媒體將視為未知擁有者: %v\n", slide.path, err)
			continue
		}
		for _, rel := range rels.Relationships {
			mediaName, ok := mediaTargetName(rel.Target)
			if !ok {
				continue
			}
			if _, exists := owners[mediaName]; exists {
				continue // 第一個引用的投影片勝出
			}
			owners[mediaName] = slide.index
		}
	}
	return owners
}

// mediaTargetName 從 relationship Target 取出媒體檔名。
// Target 形如 "../media/image1.png"（相對於 ppt/slides/）或罕見的絕對形式 "/ppt/media/x.png"。
func mediaTargetName(target string) (string, bool) {
	cleaned := path.Clean(strings.TrimPrefix(target, "/"))
	if strings.HasPrefix(cleaned, "../media/") {
		return path.Base(cleaned), true
	}
	if strings.HasPrefix(cleaned, mediaPrefix) {
		return path.Base(cleaned), true
	}
	return "", false
}

// SlideCount 回傳容器內投影片 part 的數量
func SlideCount(c *Container) int {
	count := 0
	for _, name := range c.ListEntries("ppt/slides/") {
		if strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml") {
			count++
		}
	}
	return count
}

// slideIndexLabel 將投影片編號轉為可讀標籤，0 表示未知
func slideIndexLabel(index int) string {
	if index == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", index)
}
