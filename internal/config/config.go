package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// AnalysisPrompts 保存某一類分析的多版本 Prompt 設定
type AnalysisPrompts struct {
	CurrentVersion string            `mapstructure:"currentVersion"`
	Versions       map[string]string `mapstructure:"versions"`
}

// Current 回傳目前啟用版本的 Prompt 內容與版本鍵；未設定時 ok 為 false
func (p AnalysisPrompts) Current() (prompt string, version string, ok bool) {
	prompt, found := p.Versions[p.CurrentVersion]
	return prompt, p.CurrentVersion, found && prompt != ""
}

// PromptConfig 集中管理三種分析流程的 Prompt
type PromptConfig struct {
	ImageAnalysis    AnalysisPrompts `mapstructure:"imageAnalysis"`
	VideoAnalysis    AnalysisPrompts `mapstructure:"videoAnalysis"`
	DocumentAnalysis AnalysisPrompts `mapstructure:"documentAnalysis"`
}

// SchedulerConfig 控制背景掃描 pending 任務的排程
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SweepCronSpec   string `mapstructure:"sweepCronSpec"`
	ClaimBatchLimit int    `mapstructure:"claimBatchLimit"`
}

// GeminiClientConfig 理解服務（文字/視覺/音訊推論）客戶端設定
type GeminiClientConfig struct {
	APIKey         string `mapstructure:"apiKey"`
	VisionModel    string `mapstructure:"visionModel"`
	DocumentModel  string `mapstructure:"documentModel"`
	TimeoutMinutes int    `mapstructure:"timeoutMinutes"`
}

// RendererClientConfig 外部文件轉 PDF 渲染服務設定
type RendererClientConfig struct {
	BaseURL        string `mapstructure:"baseURL"`
	TimeoutMinutes int    `mapstructure:"timeoutMinutes"`
}

// DatabaseConfig 資料庫連線設定
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
}

// ScratchConfig 任務暫存區設定（各任務以 Job ID 建立子目錄，互不干擾）
type ScratchConfig struct {
	BasePath string `mapstructure:"basePath"`
}

// RewriteConfig 簡報排版正規化設定
type RewriteConfig struct {
	TargetFont string `mapstructure:"targetFont"`
}

// Config 應用程式整體設定
type Config struct {
	AppName        string               `mapstructure:"appName"`
	ListenAddr     string               `mapstructure:"listenAddr"`
	GeminiClient   GeminiClientConfig   `mapstructure:"geminiClient"`
	RendererClient RendererClientConfig `mapstructure:"rendererClient"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Scratch        ScratchConfig        `mapstructure:"scratch"`
	Rewrite        RewriteConfig        `mapstructure:"rewrite"`
	Prompts        PromptConfig         `mapstructure:"prompts"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
}

// Load 讀取 YAML 設定檔並套用預設值與環境變數覆寫
func Load(configPath string, configName string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 設定預設值
	v.SetDefault("appName", "DeckScope-DefaultApp")
	v.SetDefault("listenAddr", ":8080")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("scratch.basePath", "./scratch")
	v.SetDefault("rewrite.targetFont", "Noto Sans TC")
	v.SetDefault("geminiClient.timeoutMinutes", 10)
	v.SetDefault("rendererClient.timeoutMinutes", 5)
	v.SetDefault("prompts.imageAnalysis.currentVersion", "default-v1")
	v.SetDefault("prompts.imageAnalysis.versions.default-v1", "請分析此圖片，擷取圖中文字並描述視覺內容。")
	v.SetDefault("prompts.videoAnalysis.currentVersion", "default-v1")
	v.SetDefault("prompts.videoAnalysis.versions.default-v1", "請分析此影片，提供逐字稿、場景摘要與語言。")
	v.SetDefault("prompts.documentAnalysis.currentVersion", "default-v1")
	v.SetDefault("prompts.documentAnalysis.versions.default-v1", "請逐頁分析此文件，擷取每頁文字、標題、列點與主題。")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sweepCronSpec", "0 */1 * * * *")
	v.SetDefault("scheduler.claimBatchLimit", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("警告：找不到設定檔，將使用預設值和環境變數。")
		} else {
			return nil, fmt.Errorf("讀取設定檔時發生錯誤: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("無法解析設定檔到結構: %w", err)
	}

	if cfg.GeminiClient.APIKey == "" {
		fmt.Println("警告：Gemini API Key 未設定！")
	}
	if cfg.RendererClient.BaseURL == "" {
		fmt.Println("警告：渲染服務 baseURL 未設定，任務將在渲染階段失敗。")
	}

	fmt.Println("資訊：設定載入成功。")
	return &cfg, nil
}
