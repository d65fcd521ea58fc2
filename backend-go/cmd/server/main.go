package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"DocStack/backend-go/internal/conf"
	"DocStack/backend-go/internal/data"
	"DocStack/backend-go/internal/handler"
	"DocStack/backend-go/internal/middleware"
	"DocStack/backend-go/internal/repository"
	"DocStack/backend-go/internal/service"
	"DocStack/backend-go/internal/worker"
)

func main() {
	// 1. 加载配置
	cfg := conf.LoadConfig()

	// 2. 初始化数据层 (Postgres, OpenSearch, Redis, MinIO)
	d, cleanup, err := data.NewData(cfg)
	if err != nil {
		log.Fatalf("❌ 数据层初始化失败: %v", err)
	}
	defer cleanup()
	userRepo := repository.NewUserRepository(d.DB)

	// 3. 外部系统客户端
	runtimeClient := service.NewHayhooksClient(cfg.Runtime)
	deployer := service.NewSFTPDeployer(cfg.Deploy)
	gen := service.NewPipelineGenerator()

	// 4. 初始化服务层
	auditService := service.NewAuditService(d.DB)
	authService := service.NewAuthService(userRepo, &cfg.Auth)
	docstoreService := service.NewDocstoreService(d, runtimeClient, deployer, gen, auditService, cfg)
	documentService := service.NewDocumentService(d, runtimeClient, auditService)
	pipelineService := service.NewPipelineService(d, deployer, gen, auditService, cfg)

	// 5. 初始化 Handler (控制器)
	authHandler := handler.NewAuthHandler(authService)
	docstoreHandler := handler.NewDocstoreHandler(docstoreService)
	documentHandler := handler.NewDocumentHandler(documentService)
	pipelineHandler := handler.NewPipelineHandler(pipelineService)
	queryHandler := handler.NewQueryHandler(docstoreService)
	auditHandler := handler.NewAuditHandler(auditService)
	healthHandler := handler.NewHealthHandler(d, runtimeClient)

	// 6. 启动旧索引清理 Worker
	sweeper := worker.NewIndexSweeper(d)
	sweeper.Start(context.Background(), 1)

	// 7. 初始化 Gin Web Server
	r := gin.Default()
	r.Use(middleware.TraceMiddleware())

	// 🔥 关键：配置 CORS 跨域
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // 开发环境允许所有，生产环境建议指定前端域名
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 8. 注册路由
	api := r.Group("/api/v1")
	{
		// 健康检查不需要登录
		api.GET("/health", healthHandler.Health)

		// 用户认证模块
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// 受保护的路由 (Protected Routes)
		protected := api.Group("/")
		protected.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			// 当前用户
			protected.GET("/me", authHandler.Me)

			// 文档库
			protected.POST("/docstores", docstoreHandler.Create)
			protected.GET("/docstores", docstoreHandler.List)
			protected.GET("/docstores/:id", docstoreHandler.Get)
			protected.PUT("/docstores/:id", docstoreHandler.Update)
			protected.DELETE("/docstores/:id", docstoreHandler.Delete)
			protected.GET("/docstores/:id/stats", docstoreHandler.Stats)
			protected.POST("/docstores/:id/reindex", docstoreHandler.Reindex)

			// 文档
			protected.POST("/docstores/:id/documents", documentHandler.Upload)
			protected.GET("/docstores/:id/documents", documentHandler.List)
			protected.GET("/docstores/:id/documents/:doc_id", documentHandler.Get)
			protected.DELETE("/docstores/:id/documents/:doc_id", documentHandler.Delete)

			// Pipeline
			protected.GET("/docstores/:id/pipelines", pipelineHandler.List)
			protected.POST("/docstores/:id/pipelines", pipelineHandler.Create)
			protected.POST("/docstores/:id/pipelines/generate", pipelineHandler.Generate)
			protected.GET("/docstores/:id/pipelines/deployment", pipelineHandler.CheckDeployment)
			protected.PUT("/pipelines/:id", pipelineHandler.Update)
			protected.DELETE("/pipelines/:id", pipelineHandler.Delete)
			protected.POST("/pipelines/:id/deploy", pipelineHandler.Deploy)

			// 检索
			protected.POST("/query", queryHandler.Query)

			// 审计日志
			protected.GET("/audit-logs", auditHandler.List)
		}
	}

	log.Printf("🚀 DocStack 后端已启动，监听端口 :%s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatalf("❌ Server 启动失败: %v", err)
	}
}
