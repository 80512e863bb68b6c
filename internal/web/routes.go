package web

import (
	"log"
	"net/http"

	"DeckScope-admin/internal/config"
	"DeckScope-admin/internal/services"
	"DeckScope-admin/internal/web/handlers"
)

// ScratchAccess 彙整 web 層需要的暫存區操作
type ScratchAccess interface {
	handlers.SourceSaver
	handlers.ArtifactReader
}

// SetupRouter 組裝所有 HTTP 路由
func SetupRouter(appConfig *config.Config, db handlers.DBStore, scratch ScratchAccess, analyzeService *services.AnalyzeService) http.Handler {
	if analyzeService == nil {
		log.Panicln("SetupRouter：AnalyzeService 不得為空")
	}
	mux := http.NewServeMux()
	templateBasePath := "internal/web/templates"

	dashboardHandler, err := handlers.NewDashboardHandler(db, templateBasePath)
	if err != nil {
		log.Fatalf("錯誤：無法建立 Dashboard Handler: %v", err)
	}
	mux.Handle("/dashboard", dashboardHandler)

	uploadHandler := handlers.NewUploadHandler(db, scratch, analyzeService)
	mux.Handle("/upload", uploadHandler)

	jobStatusHandler := handlers.NewJobStatusHandler(db)
	mux.Handle("/jobs", jobStatusHandler)

	artifactHandler := handlers.NewArtifactHandler(db, scratch)
	mux.Handle("/jobs/artifact", artifactHandler)

	triggerAnalysisHandler := handlers.NewTriggerAnalysisHandler(analyzeService)
	mux.Handle("/manual-analyze", triggerAnalysisHandler)

	exportHandler := handlers.NewExportHandler(db)
	mux.Handle("/export", exportHandler)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
		log.Printf("警告：未匹配的路由: %s", r.URL.Path)
		http.NotFound(w, r)
	})

	log.Println("資訊：HTTP 路由設定完成。")
	return mux
}
