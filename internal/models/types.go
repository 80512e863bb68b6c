package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// JsonNullString 是 sql.NullString 的包裝類型，用於自訂 JSON (un)marshalling。
// 分析結果中需要區分「欄位為 null」與「欄位為空字串」（例如影片的 transcription
// 即使為空也必須是非 null 的空字串），因此以 Valid 旗標承載這個差異。
type JsonNullString struct {
	sql.NullString
}

// NewJsonNullString 以給定字串建立一個 Valid 的 JsonNullString（允許空字串）
func NewJsonNullString(s string) *JsonNullString {
	return &JsonNullString{NullString: sql.NullString{String: s, Valid: true}}
}

// MarshalJSON 為 JsonNullString 實現 json.Marshaler 介面。
func (jns JsonNullString) MarshalJSON() ([]byte, error) {
	if !jns.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(jns.String)
}

// UnmarshalJSON 為 JsonNullString 實現 json.Unmarshaler 介面。
func (jns *JsonNullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		jns.String, jns.Valid = "", false
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		jns.String, jns.Valid = "", false
		return fmt.Errorf("JsonNullString: 期望 JSON 字串或 null，但得到 '%s': %w", string(data), err)
	}
	jns.String, jns.Valid = s, true
	return nil
}
