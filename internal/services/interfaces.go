package services

import (
	"context"

	"DeckScope-admin/internal/clients/gemini"
)

// ScratchStorage 介面定義了任務暫存區操作
type ScratchStorage interface {
	JobDir(jobID string) (string, error)
	SaveSource(jobID string, filename string, data []byte) (string, error)
	ReadSource(jobID string) (string, []byte, error)
	SaveArtifact(jobID string, name string, data []byte) (string, error)
	CleanupMedia(jobID string) error
}

// UnderstandingClient 介面定義了理解服務（文字/視覺/音訊推論）操作
type UnderstandingClient interface {
	AnalyzeImage(ctx context.Context, imagePath string, prompt string) (*gemini.ImageAnalysis, error)
	AnalyzeVideo(ctx context.Context, videoPath string, prompt string) (*gemini.VideoAnalysis, error)
	AnalyzeDocument(ctx context.Context, pdfPath string, prompt string, assetContextJSON string) ([]gemini.DocumentPage, error)
}

// RenderingClient 介面定義了文件轉 PDF 渲染服務操作
type RenderingClient interface {
	RenderPDF(ctx context.Context, containerData []byte, filename string) ([]byte, int, error)
}
