package gemini

import "testing"

func TestCleanJSONString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "markdown 代碼塊",
			in:   "```json\n{\"extracted_text\":\"你好\"}\n```",
			want: `{"extracted_text":"你好"}`,
		},
		{
			name: "無語言標記的代碼塊",
			in:   "```\n{\"a\":1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "前後夾雜說明文字",
			in:   "以下是分析結果：{\"a\":1} 希望對您有幫助。",
			want: `{"a":1}`,
		},
		{
			name: "JSON 陣列",
			in:   "結果如下 [{\"page_number\":1}] 完畢",
			want: `[{"page_number":1}]`,
		},
		{
			name: "移除控制字元",
			in:   "{\"a\":\"b\x01c\"}",
			want: `{"a":"bc"}`,
		},
		{
			name: "BOM 前綴",
			in:   "\ufeff{\"a\":1}",
			want: `{"a":1}`,
		},
		{
			name: "完全不是 JSON 時原樣回傳",
			in:   "這裡沒有任何結構化內容",
			want: "這裡沒有任何結構化內容",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONString(tt.in); got != tt.want {
				t.Errorf("cleanJSONString(%q) = %q, 預期 %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestImageMIMEType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/image1.png", "image/png"},
		{"a/photo.JPG", "image/jpeg"},
		{"a/photo.jpeg", "image/jpeg"},
		{"a/anim.gif", "image/gif"},
		{"a/pic.webp", "image/webp"},
		{"a/unknown.xyz", "image/png"},
	}
	for _, tt := range tests {
		if got := imageMIMEType(tt.path); got != tt.want {
			t.Errorf("imageMIMEType(%q) = %q, 預期 %q", tt.path, got, tt.want)
		}
	}
}

func TestVideoMIMEType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/clip.mp4", "video/mp4"},
		{"a/clip.MOV", "video/quicktime"},
		{"a/clip.wmv", "video/x-ms-wmv"},
		{"a/clip.flv", "video/x-flv"},
		{"a/clip.unknown", "video/mp4"},
	}
	for _, tt := range tests {
		if got := videoMIMEType(tt.path); got != tt.want {
			t.Errorf("videoMIMEType(%q) = %q, 預期 %q", tt.path, got, tt.want)
		}
	}
}
