package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mchat/internal/ai"
	"github.com/xxxsen/mchat/internal/config"
	"github.com/xxxsen/mchat/internal/convo"
	"github.com/xxxsen/mchat/internal/db"
	"github.com/xxxsen/mchat/internal/embedding"
	"github.com/xxxsen/mchat/internal/filestore"
	"github.com/xxxsen/mchat/internal/handler"
	"github.com/xxxsen/mchat/internal/job"
	"github.com/xxxsen/mchat/internal/metrics"
	"github.com/xxxsen/mchat/internal/middleware"
	"github.com/xxxsen/mchat/internal/rag"
	"github.com/xxxsen/mchat/internal/repo"
	"github.com/xxxsen/mchat/internal/schedule"
	"github.com/xxxsen/mchat/internal/service"
)

const apiPrefix = "/api/v1"

type app struct {
	cfg        *config.Config
	db         *sql.DB
	files      filestore.Store
	assistants *service.AssistantService
	documents  *service.DocumentService
	chat       *service.ChatService
}

func main() {
	var configPath string
	var documentID int64

	rootCmd := &cobra.Command{
		Use:   "mchat",
		Short: "mchat assistant chat backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run mchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			return a.runServer()
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config file (json or yaml)")

	reparseCmd := &cobra.Command{
		Use:   "reparse",
		Short: "re-parse knowledge documents and rebuild their chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			return a.reparse(cmd.Context(), documentID)
		},
	}
	reparseCmd.Flags().StringVar(&configPath, "config", "", "path to config file (json or yaml)")
	reparseCmd.Flags().Int64Var(&documentID, "id", 0, "only re-parse this document")

	rootCmd.AddCommand(runCmd, reparseCmd)
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func bootstrap(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	ctx := context.Background()
	logutil.GetLogger(ctx).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}

	assistantRepo := repo.NewAssistantRepo(conn)
	documentRepo := repo.NewDocumentRepo(conn)
	documentChunkRepo := repo.NewDocumentChunkRepo(conn)
	conversationRepo := repo.NewConversationRepo(conn)
	messageRepo := repo.NewMessageRepo(conn)
	attachmentChunkRepo := repo.NewAttachmentChunkRepo(conn)

	manager, err := ai.BuildManager(cfg.AI)
	if err != nil {
		// Chat endpoints answer with an unavailable error until fixed.
		logutil.GetLogger(ctx).Error("init ai provider failed, chat disabled", zap.Error(err))
	}

	embedder := embedding.WrapLRU(embedding.NewHashEmbedder(), cfg.RAG.QueryCacheSize,
		time.Duration(cfg.RAG.QueryCacheTTLSeconds)*time.Second)
	retriever := rag.NewRetriever(attachmentChunkRepo, documentRepo, documentChunkRepo,
		rag.WithEmbedder(embedder),
		rag.WithDimension(cfg.RAG.VectorDimension),
		rag.WithScanLimit(cfg.RAG.KnowledgeScanLimit),
	)

	assistants := service.NewAssistantService(assistantRepo, cfg.Chat.ProfileCacheSize,
		time.Duration(cfg.Chat.ProfileCacheTTLSeconds)*time.Second)
	documents := service.NewDocumentService(documentRepo, documentChunkRepo, store, cfg.Chat.UploadLimitBytes)
	chat := service.NewChatService(service.ChatDeps{
		Profiles:      assistants,
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Attachments:   attachmentChunkRepo,
		Retriever:     retriever,
		Completer:     manager,
		Files:         store,
		Locks:         convo.NewLockRegistry(),
	}, service.ChatOptions{
		StreamBuffer:           cfg.Chat.StreamBuffer,
		PersistPartialOnError:  cfg.Chat.PersistPartialOnError,
		MaxMessageChars:        cfg.Chat.MaxMessageChars,
		UploadLimitBytes:       cfg.Chat.UploadLimitBytes,
		AttachmentChunkSize:    cfg.RAG.AttachmentChunkSize,
		AttachmentChunkOverlap: cfg.RAG.AttachmentChunkOverlap,
		VectorDimension:        cfg.RAG.VectorDimension,
		AttachmentContextLimit: cfg.RAG.AttachmentContextLimit,
		KnowledgeContextLimit:  cfg.RAG.KnowledgeContextLimit,
	})
	metrics.TrackLocks(chat.LockCount)

	return &app{cfg: cfg, db: conn, files: store, assistants: assistants, documents: documents, chat: chat}, nil
}

func (a *app) runServer() error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", a.files.Type()),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seeded, err := a.assistants.Seed(ctx); err != nil {
		return fmt.Errorf("seed assistants: %w", err)
	} else if seeded > 0 {
		logutil.GetLogger(ctx).Info("default assistants seeded", zap.Int("count", seeded))
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewParsePendingJob(a.documents, cfg.Jobs.ParseBatchSize), cfg.Jobs.ParsePendingSpec); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewLockSweepJob(a.chat, time.Duration(cfg.Chat.LockIdleSeconds)*time.Second), cfg.Jobs.LockSweepSpec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Assistants:   handler.NewAssistantHandler(a.assistants),
		Chat:         handler.NewChatHandler(a.chat, cfg.Chat.UploadLimitBytes),
		WS:           handler.NewWSHandler(a.chat, cfg.CORS),
		Documents:    handler.NewDocumentHandler(a.documents, cfg.Chat.UploadLimitBytes),
		Files:        handler.NewFileHandler(a.files),
		SendInterval: time.Duration(cfg.Chat.SendIntervalMillis) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		apiPrefix,
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORS),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{apiPrefix + "/ws/"})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", engine)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logutil.GetLogger(context.Background()).Info("server stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (a *app) reparse(ctx context.Context, documentID int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logutil.GetLogger(ctx)
	if documentID > 0 {
		doc, err := a.documents.Parse(ctx, documentID)
		if err != nil {
			return err
		}
		logger.Info("document re-parsed", zap.Int64("document_id", doc.ID), zap.String("status", doc.ParseStatus))
		return nil
	}
	const page = 100
	var offset uint
	total := 0
	for {
		docs, err := a.documents.List(ctx, page, offset)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			parsed, err := a.documents.Parse(ctx, doc.ID)
			if err != nil {
				logger.Error("re-parse document failed", zap.Int64("document_id", doc.ID), zap.Error(err))
				continue
			}
			total++
			logger.Info("document re-parsed", zap.Int64("document_id", parsed.ID), zap.String("status", parsed.ParseStatus))
		}
		if len(docs) < page {
			break
		}
		offset += page
	}
	logger.Info("re-parse finished", zap.Int("documents", total))
	return nil
}
