package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alinorwa/nurse-assistant-management/internal/chat"
	"github.com/alinorwa/nurse-assistant-management/internal/enrichment"
	handlers "github.com/alinorwa/nurse-assistant-management/internal/handler"
	"github.com/alinorwa/nurse-assistant-management/internal/listeners"
	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/internal/surveillance"
	"github.com/alinorwa/nurse-assistant-management/internal/translation"
	"github.com/alinorwa/nurse-assistant-management/pkg/backup"
	"github.com/alinorwa/nurse-assistant-management/pkg/cache"
	"github.com/alinorwa/nurse-assistant-management/pkg/codec"
	"github.com/alinorwa/nurse-assistant-management/pkg/config"
	"github.com/alinorwa/nurse-assistant-management/pkg/llm"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/metrics"
	"github.com/alinorwa/nurse-assistant-management/pkg/middleware"
	"github.com/alinorwa/nurse-assistant-management/pkg/scheduler"
	"github.com/alinorwa/nurse-assistant-management/pkg/sse"
	stores "github.com/alinorwa/nurse-assistant-management/pkg/storage"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
	"github.com/alinorwa/nurse-assistant-management/pkg/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. 加载配置
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig

	// 2. 初始化日志
	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	loc := cfg.Location()

	// 3. 数据库与字段加密
	db, err := util.OpenDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode == "debug")
	if err != nil {
		return err
	}
	fieldCodec, err := codec.NewFromBase64(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	models.RegisterFieldCodec(fieldCodec)
	if err := models.Migrate(db); err != nil {
		return err
	}

	// 4. 指标
	var m *metrics.Metrics
	var observer middleware.MetricsObserver
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics(prometheus.DefaultRegisterer)
		metrics.SetGlobal(m)
		observer = middleware.NewPrometheusObserver(prometheus.DefaultRegisterer)
	}

	// 5. redis 是可选的，缺省时全部退化为进程内实现
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if rdb, err = cache.NewRedisClient(ctx, cfg.RedisURL); err != nil {
			return err
		}
		defer rdb.Close()
	}

	// translation hot layer stays in process, it holds plaintext
	hot := cache.NewLocalCache(cache.DefaultLocalConfig())
	defer hot.Close()

	kwStore, err := cache.NewCache(ctx, cache.Config{
		Type:     cfg.CacheType,
		RedisURL: cfg.RedisURL,
		Local:    cache.DefaultLocalConfig(),
		Layered:  rdb != nil,
	}, rdb, "triage:kw:")
	if err != nil {
		return err
	}
	defer kwStore.Close()
	keywords := models.NewKeywordCache(kwStore)

	// 6. 实时通道
	hubCfg := websocket.LoadConfigFromEnv()
	if err := websocket.ValidateConfig(hubCfg); err != nil {
		return err
	}
	hub := websocket.NewHub(hubCfg)
	defer hub.Close()
	if cfg.GatewayRelay && rdb != nil {
		if err := hub.UseRelay(websocket.NewRedisRelay(rdb, "", hubCfg.ClusterNodeID)); err != nil {
			return err
		}
		logger.Info("gateway relay enabled", zap.String("channel", websocket.RelayChannel))
	}
	events := sse.NewHub(15 * time.Second)
	publisher := chat.Fanout{hub, events}

	limiterStore, err := middleware.NewLimiterStore(rdb, "triage:ws")
	if err != nil {
		return err
	}
	senderLimiter, err := middleware.NewSenderLimiter(cfg.RateLimit, limiterStore, observer)
	if err != nil {
		return err
	}

	// 7. 外部服务
	llmLog := logrus.StandardLogger()
	var translator llm.Translator
	switch cfg.Translator.Provider {
	case "openai":
		translator = newOpenAI(cfg, llmLog)
	default:
		translator = llm.NewAzureTranslator(cfg.Translator.Key, cfg.Translator.Endpoint, cfg.Translator.Region, llmLog)
	}
	vision := newOpenAI(cfg, llmLog)
	if !vision.Configured() {
		logger.Warn("vision provider not configured, image analysis will be marked unavailable")
	}

	store, err := stores.NewStore(cfg.Storage.Driver, cfg.Storage.MediaRoot, cfg.Storage.MediaURL)
	if err != nil {
		return err
	}

	// 8. 领域服务
	chatSvc := chat.NewService(db)
	trSvc := translation.NewService(translation.NewCache(db, hot, m), translator, cfg.Translator.Timeout)
	pipeline := enrichment.NewPipeline(db, enrichment.Options{
		Translator:    trSvc,
		Vision:        vision,
		Store:         store,
		Publisher:     publisher,
		CampLanguage:  cfg.CampLanguage,
		VisionTimeout: cfg.Vision.Timeout,
		Location:      loc,
		Metrics:       m,
		Keywords:      keywords,
	})
	pool := enrichment.NewPool(cfg.EnrichWorkers, cfg.EnrichQueue, pipeline.Process, m)
	pool.Start()

	listeners.InitMessageListeners(pool)
	listeners.InitAlertListeners(publisher, m)

	// 9. 定时任务
	agg := surveillance.NewAggregator(db, surveillance.Config{
		Window:    cfg.Surveillance.Window,
		Threshold: cfg.Surveillance.Threshold,
	}, m)
	cron := scheduler.NewCron(loc, logger.Lg)
	if _, err := cron.Add(cfg.Surveillance.Schedule, agg.Job()); err != nil {
		return err
	}
	if cfg.Backup.Schedule != "" {
		bcfg := backup.Config{Driver: cfg.DBDriver, Dir: cfg.Backup.Path, Keep: cfg.Backup.Keep}
		if cfg.Backup.Upload {
			bcfg.Store = store
		}
		if _, err := cron.Add(cfg.Backup.Schedule, backup.New(db, bcfg).Job()); err != nil {
			return err
		}
	}
	cron.Start()
	defer cron.Stop()

	ticker := scheduler.New()
	defer ticker.Stop()
	ticker.Every(15*time.Second, scheduler.FuncJob(func(context.Context) {
		m.SetGatewayConnections(int(hub.GetConnectionCount()))
	}))

	// 10. HTTP
	gin.SetMode(ginMode(cfg.Mode))
	engine := gin.New()
	engine.Use(gin.Recovery())
	if m != nil {
		engine.Use(metrics.MonitorMiddleware(m))
	}
	engine.Use(middleware.SessionStore(cfg.SessionSecret))
	engine.Use(middleware.Authenticate(cfg.JWTSecret, models.PrincipalLoader(db)))

	apiStore, err := middleware.NewLimiterStore(rdb, "triage:api")
	if err != nil {
		return err
	}
	apiLimiter, err := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:       cfg.APIRateLimit,
		Identifier: "ip",
		SkipPaths:  []string{"/metrics", cfg.APIPrefix + "/system/health"},
		AddHeaders: true,
	}, apiStore)
	if err != nil {
		return err
	}
	engine.Use(apiLimiter.WithObserver(observer).Middleware())

	if cfg.StaticMediaServe && cfg.Storage.Driver != "minio" {
		engine.Static(cfg.Storage.MediaURL, cfg.Storage.MediaRoot)
	}

	deps := handlers.Deps{
		Chat:      chatSvc,
		Gateway:   chat.NewGateway(hub, chatSvc, senderLimiter, loc, m),
		Publisher: publisher,
		Hub:       hub,
		Events:    events,
		Store:     store,
		Location:  loc,
		Keywords:  keywords,
	}
	if m != nil {
		deps.MetricsHandler = promhttp.Handler()
	}
	handlers.NewHandlers(db, deps).Register(engine)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", cfg.Addr), zap.String("mode", cfg.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		if perr := pool.Stop(shutdownCtx); perr != nil {
			logger.Warn("enrichment pool did not drain", zap.Error(perr))
		}
		return err
	})
	return g.Wait()
}

// newOpenAI prefers Azure OpenAI when it is configured.
func newOpenAI(cfg *config.Config, lg *logrus.Logger) *llm.OpenAIHandler {
	v := cfg.Vision
	if v.AzureKey != "" || v.AzureEndpoint != "" {
		return llm.NewAzureOpenAIHandler(v.AzureKey, v.AzureEndpoint, v.AzureDeployment, v.AzureAPIVersion, lg)
	}
	return llm.NewOpenAIHandler(v.OpenAIKey, v.OpenAIBaseURL, v.OpenAIModel, lg)
}

func ginMode(mode string) string {
	switch mode {
	case gin.ReleaseMode, gin.TestMode:
		return mode
	}
	return gin.DebugMode
}
