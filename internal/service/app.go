package service

import (
	"context"
	"fmt"
	"time"

	"docfinder/internal/config"
	"docfinder/internal/docapi"
	"docfinder/internal/domain"
	"docfinder/internal/fileutil"
	"docfinder/internal/pubsub"
	"docfinder/internal/search"
	"docfinder/internal/summarizer"
	"docfinder/internal/upload"
)

// App is one client session: the document service client, the upload
// orchestrator, the search manager and the brokers that feed the front end.
type App struct {
	Uploads *pubsub.Broker[upload.Event]
	Results *pubsub.Broker[search.Event]

	Orchestrator *upload.Orchestrator
	Search       *search.Manager

	topK int
}

// New assembles a session from cfg. confirmer answers overwrite and
// download prompts.
func New(cfg *config.AppConfig, confirmer domain.Confirmer) (*App, error) {
	client, err := docapi.NewClient(docapi.Config{
		BaseURL: cfg.Server.BaseURL,
		Paths: docapi.Paths{
			Upload:    cfg.Server.Paths.Upload,
			Search:    cfg.Server.Paths.Search,
			Download:  cfg.Server.Paths.Download,
			Summarize: cfg.Server.Paths.Summarize,
		},
		SuccessMarker:   cfg.Upload.SuccessMarker,
		DuplicateMarker: cfg.Upload.DuplicateMarker,
		Timeout:         time.Duration(cfg.Server.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("document service client: %w", err)
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case config.SummarizerRemote, "":
		sum = client
	case config.SummarizerLocal:
		sum = summarizer.NewLocal(cfg.Summarizer.MaxSentences, cfg.Summarizer.Keywords)
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	uploads := pubsub.NewBroker[upload.Event]()
	results := pubsub.NewBroker[search.Event]()

	orch := upload.NewOrchestrator(client, confirmer, uploads, upload.Options{
		CompleteDelay: time.Duration(cfg.Upload.CompleteDelayMS) * time.Millisecond,
		ClearDelay:    time.Duration(cfg.Upload.ClearDelayMS) * time.Millisecond,
	})
	mgr := search.NewManager(search.Deps{
		Searcher:   client,
		Downloader: client,
		Summarizer: sum,
		Saver:      fileutil.DownloadDir{Path: cfg.Download.Dir},
		Confirmer:  confirmer,
		Events:     results,
	}, cfg.Search.TopK)

	return &App{
		Uploads:      uploads,
		Results:      results,
		Orchestrator: orch,
		Search:       mgr,
		topK:         cfg.Search.TopK,
	}, nil
}

// TopK is the configured default result bound.
func (a *App) TopK() int { return a.topK }

// UploadPaths expands paths and globs and uploads the files as one batch.
func (a *App) UploadPaths(ctx context.Context, patterns []string) (upload.Report, error) {
	files, err := upload.ResolveFiles(patterns)
	if err != nil {
		return upload.Report{}, err
	}
	return a.Orchestrator.SubmitBatch(ctx, files)
}

// Close stops the brokers and closes every subscriber channel.
func (a *App) Close() {
	a.Uploads.Shutdown()
	a.Results.Shutdown()
}
