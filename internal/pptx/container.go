// Package pptx 負責讀取與改寫 Office Open XML 簡報容器（ZIP + XML 套件）。
package pptx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEntryNotFound 表示容器中不存在指定名稱的 part
var ErrEntryNotFound = errors.New("容器中找不到指定的 part")

// Container 是一個不可變的簡報容器：part 路徑對應原始位元組。
// 任何改寫操作（字型正規化、移除影片）都會產生新的 Container，原件不被修改。
type Container struct {
	entries map[string][]byte
	order   []string // 保留 ZIP 內原始 part 順序，重新打包時維持穩定輸出
}

// Open 從上傳的位元組開啟簡報容器
func Open(data []byte) (*Container, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("無法以 ZIP 格式開啟容器: %w", err)
	}
	c := &Container{entries: make(map[string][]byte, len(reader.File))}
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("無法開啟容器內 part '%s': %w", file.Name, err)
		}
		content := new(bytes.Buffer)
		if _, err := content.ReadFrom(rc); err != nil {
			rc.Close()
			return nil, fmt.Errorf("無法讀取容器內 part '%s': %w", file.Name, err)
		}
		rc.Close()
		c.entries[file.Name] = content.Bytes()
		c.order = append(c.order, file.Name)
	}
	return c, nil
}

// ListEntries 回傳所有以 prefix 開頭的 part 路徑，依原始順序排列
func (c *Container) ListEntries(prefix string) []string {
	var names []string
	for _, name := range c.order {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names
}

// ReadEntry 讀取指定 part 的原始位元組
func (c *Container) ReadEntry(path string) ([]byte, error) {
	data, ok := c.entries[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}
	return data, nil
}

// HasEntry 回傳容器中是否存在指定 part
func (c *Container) HasEntry(path string) bool {
	_, ok := c.entries[path]
	return ok
}

// EntryCount 回傳容器內 part 總數
func (c *Container) EntryCount() int {
	return len(c.order)
}

// withEntries 以給定的 part 集合建立新容器，順序沿用原容器（新增的 part 排在最後）
func (c *Container) withEntries(entries map[string][]byte) *Container {
	nc := &Container{entries: entries}
	seen := make(map[string]bool, len(entries))
	for _, name := range c.order {
		if _, ok := entries[name]; ok {
			nc.order = append(nc.order, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range entries {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	nc.order = append(nc.order, extra...)
	return nc
}

// WithReplacedEntries 回傳一個新容器，其中 replacements 指定的 part 被替換，其餘沿用
func (c *Container) WithReplacedEntries(replacements map[string][]byte) *Container {
	entries := make(map[string][]byte, len(c.entries))
	for name, data := range c.entries {
		entries[name] = data
	}
	for name, data := range replacements {
		entries[name] = data
	}
	return c.withEntries(entries)
}

// WithoutEntries 回傳一個新容器，排除 drop 判定為 true 的 part
func (c *Container) WithoutEntries(drop func(path string) bool) *Container {
	entries := make(map[string][]byte, len(c.entries))
	for name, data := range c.entries {
		if drop(name) {
			continue
		}
		entries[name] = data
	}
	return c.withEntries(entries)
}

// Bytes 將容器重新打包為 ZIP 位元組
func (c *Container) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := zip.NewWriter(buf)
	for _, name := range c.order {
		w, err := writer.Create(name)
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("無法建立 ZIP part '%s': %w", name, err)
		}
		if _, err := w.Write(c.entries[name]); err != nil {
			writer.Close()
			return nil, fmt.Errorf("無法寫入 ZIP part '%s': %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("無法完成 ZIP 打包: %w", err)
	}
	return buf.Bytes(), nil
}
