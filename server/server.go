package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"echowall/cache"
	"echowall/config"
	"echowall/core/audio"
	"echowall/core/events"
	"echowall/core/store"
	"echowall/logger"
	"echowall/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	})

	if err := os.MkdirAll(cfg.UploadTmpDir, 0755); err != nil {
		logger.Fatal("创建上传临时目录失败", logger.ErrorField(err))
	}

	clipStore, err := store.NewClipStore(cfg.ClipsDir)
	if err != nil {
		logger.Fatal("打开片段仓库失败", logger.ErrorField(err))
	}

	// Redis统计与MinIO归档都是可选依赖
	cache.ConnectRedis(cfg)
	defer cache.CloseRedis()

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("初始化MinIO失败", logger.ErrorField(err))
	}

	engine := audio.NewFFmpegEngine(cfg.FFmpegPath, cfg.FFprobePath)
	handler := NewAPIHandler(cfg, clipStore, engine)

	// 事件中心与目录监听：目录是clip_added/clip_removed的唯一事件来源，
	// 上传发布也要落到目录里，监听器自然会看到
	hub := events.NewHub()
	go hub.Run()
	defer hub.Stop()
	handler.hub = hub

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	watcher := store.NewWatcher(clipStore, func(ev store.CatalogEvent, clipID string) {
		hub.Publish(events.Event{Type: events.Type(ev), ClipID: clipID})
	})
	go func() {
		if err := watcher.Run(watchCtx); err != nil {
			logger.Error("片段目录监听退出", logger.ErrorField(err))
		}
	}()

	router := mux.NewRouter()

	// CORS中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Reset-Token, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// API Endpoints
	router.HandleFunc("/api/clips", handler.UploadClipHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/clips", handler.ListClipsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/stream", handler.StreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/master", handler.MasterHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/reset", handler.ResetHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/stats", handler.StatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/events", handler.EventsHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// 合成流的时长取决于墙上的内容，不能设WriteTimeout
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("EchoWall服务器启动",
			logger.String("addr", cfg.ServerAddr),
			logger.String("clipsDir", cfg.ClipsDir),
			logger.String("composeMode", string(cfg.ComposeMode)))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("收到退出信号，开始关闭服务器")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("服务器强制关闭", logger.ErrorField(err))
	}

	logger.Info("服务器已停止")
}
