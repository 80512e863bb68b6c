package pptx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"strings"
)

// typographyPartPrefixes 是允許改寫字型的 part 路徑前綴。
// 改寫器絕不觸碰這四個前綴以外的 part。
var typographyPartPrefixes = []string{
	"ppt/slides/",
	"ppt/theme/",
	"ppt/slideMasters/",
	"ppt/slideLayouts/",
}

// RewriteTypography 將容器內所有字型宣告（typeface 屬性）替換為單一目標字型，
// 回傳改寫後的新容器。以 XML token 走訪結構化改寫，僅改動帶 typeface 屬性的節點，
// 因此對已改寫過的容器重複執行會得到相同位元組（冪等）。
// 個別 part 格式損毀時保留原樣並繼續；字型正規化失敗從不中斷整體流程。
func RewriteTypography(c *Container, fontName string) (*Container, error) {
	if fontName == "" {
		return nil, fmt.Errorf("目標字型名稱不得為空")
	}

	replacements := make(map[string][]byte)
	for _, prefix := range typographyPartPrefixes {
		for _, name := range c.ListEntries(prefix) {
			if !strings.HasSuffix(name, ".xml") {
				continue // 排除 _rels 下的 .rels 等非 XML part
			}
			data, err := c.ReadEntry(name)
			if err != nil {
				continue
			}
			rewritten, err := rewriteTypefaceAttrs(data, fontName)
			if err != nil {
				log.Printf("警告：[Pptx] part '%s' 的 XML 結構無法解析，保留原樣: %v\n", name, err)
				continue
			}
			replacements[name] = rewritten
		}
	}
	return c.WithReplacedEntries(replacements), nil
}

// rewriteTypefaceAttrs 以 RawToken 走訪單一 XML part，改寫所有 typeface 屬性後重新序列化。
// 使用 RawToken 而非 Token 以保留命名空間前綴（a:latin 等）不被改寫。
func rewriteTypefaceAttrs(data []byte, fontName string) ([]byte, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	out := new(bytes.Buffer)

	for {
		token, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			out.WriteByte('<')
			out.WriteString(rawName(t.Name))
			for _, attr := range t.Attr {
				value := attr.Value
				if attr.Name.Local == "typeface" {
					value = fontName
				}
				out.WriteByte(' ')
				out.WriteString(rawName(attr.Name))
				out.WriteString(`="`)
				writeEscaped(out, value)
				out.WriteByte('"')
			}
			out.WriteByte('>')
		case xml.EndElement:
			out.WriteString("</")
			out.WriteString(rawName(t.Name))
			out.WriteByte('>')
		case xml.CharData:
			writeEscaped(out, string(t))
		case xml.Comment:
			out.WriteString("<!--")
			out.Write(t)
			out.WriteString("-->")
		case xml.ProcInst:
			out.WriteString("<?")
			out.WriteString(t.Target)
			out.WriteByte(' ')
			out.Write(t.Inst)
			out.WriteString("?>")
		case xml.Directive:
			out.WriteString("<!")
			out.Write(t)
			out.WriteByte('>')
		}
	}
	return out.Bytes(), nil
}

// rawName 還原 RawToken 給出的名稱（Space 欄位為原始前綴字串）
func rawName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// writeEscaped 將文字以 XML 實體轉義後寫出
func writeEscaped(out *bytes.Buffer, s string) {
	_ = xml.EscapeText(out, []byte(s))
}
