package router

import (
	"time"

	"expensetracker/api"
	"expensetracker/config"
	"expensetracker/database"
	_ "expensetracker/docs"
	"expensetracker/middleware"
	"expensetracker/service"
	"expensetracker/workflow"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Dependencies 路由依赖的服务
type Dependencies struct {
	Blobs    service.BlobStore
	Mailer   *service.EmailService
	Renderer *service.ReportRenderer
	Workflow *workflow.Service
	Expenses *workflow.ExpenseStore
}

// NewDependencies 按配置组装服务：本地票据存储、SMTP 通知、PDF 渲染和审批工作流
func NewDependencies(cfg *config.Config, settings *config.Settings, logger *zap.Logger) *Dependencies {
	blobs := service.NewLocalBlobStore(database.DB, cfg.Storage.BlobDir, logger)
	mailer := service.NewEmailService(&cfg.Email, cfg.Server.BaseURL)
	renderer := service.NewReportRenderer(blobs, logger)

	wf := workflow.NewService(database.DB, logger)
	wf.UseDefaultHooks(mailer, renderer, settings)

	return &Dependencies{
		Blobs:    blobs,
		Mailer:   mailer,
		Renderer: renderer,
		Workflow: wf,
		Expenses: workflow.NewExpenseStore(database.DB, settings, blobs, logger),
	}
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, settings *config.Settings, deps *Dependencies, logger *zap.Logger) *gin.Engine {
	// 设置运行模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))

	// CORS 中间件
	r.Use(CORSMiddleware())

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authHandler := api.NewAuthHandler(cfg)
	categoryHandler := api.NewCategoryHandler()
	expenseHandler := api.NewExpenseHandler(deps.Expenses, deps.Blobs, cfg.Storage.MaxUploadMB)
	reportHandler := api.NewReportHandler(deps.Workflow, deps.Renderer)
	managerHandler := api.NewManagerHandler(deps.Workflow)
	settingsHandler := api.NewSettingsHandler(settings, deps.Mailer)
	exportHandler := api.NewExportHandler()

	v1 := r.Group("/api/v1")
	{
		// 认证相关路由（无需登录）
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", middleware.LoginRateLimit(10, time.Minute), authHandler.Login)
		}

		// 消费类别（无需登录）
		v1.GET("/categories", categoryHandler.Public)

		// 需要 JWT 认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth())
		{
			authorized.GET("/auth/profile", authHandler.GetProfile)
			authorized.PUT("/auth/password", authHandler.ChangePassword)

			expenses := authorized.Group("/expenses")
			{
				expenses.POST("", expenseHandler.Create)
				expenses.GET("", expenseHandler.List)
				expenses.GET("/statistics", expenseHandler.GetStatistics)
				expenses.GET("/:id", expenseHandler.Get)
				expenses.PUT("/:id", expenseHandler.Update)
				expenses.DELETE("/:id", expenseHandler.Delete)
				expenses.POST("/:id/receipt", middleware.UploadRateLimit(30, time.Minute), expenseHandler.UploadReceipt)
				expenses.GET("/:id/receipt", expenseHandler.DownloadReceipt)
			}

			reports := authorized.Group("/reports")
			{
				reports.POST("", reportHandler.Create)
				reports.GET("", reportHandler.List)
				reports.GET("/:id", reportHandler.Get)
				reports.PUT("/:id", reportHandler.Update)
				reports.DELETE("/:id", reportHandler.Delete)
				reports.POST("/:id/submit", reportHandler.Submit)
				reports.POST("/:id/approve", reportHandler.Approve)
				reports.POST("/:id/reject", reportHandler.Reject)
				reports.GET("/:id/pdf", reportHandler.DownloadPDF)
				reports.GET("/:id/export", reportHandler.Export)
			}
			authorized.GET("/approvals", reportHandler.PendingApprovals)

			authorized.GET("/managers", managerHandler.ListManagers)
			authorized.POST("/managers", managerHandler.AddManager)
			authorized.DELETE("/managers/:id", managerHandler.RemoveManager)
			authorized.GET("/employees", managerHandler.ListEmployees)

			export := authorized.Group("/export")
			{
				export.GET("/csv", exportHandler.ExportCSV)
				export.GET("/json", exportHandler.ExportJSON)
			}

			authorized.GET("/settings", settingsHandler.Get)

			// 后台管理
			admin := authorized.Group("/admin")
			admin.Use(middleware.RequireAdmin())
			{
				admin.GET("/categories", categoryHandler.List)
				admin.POST("/categories", categoryHandler.Create)
				admin.PUT("/categories/:id", categoryHandler.Update)
				admin.DELETE("/categories/:id", categoryHandler.Delete)
				admin.PUT("/settings", settingsHandler.Update)
				admin.POST("/settings/test-email", settingsHandler.SendTestEmail)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return r
}

// CORSMiddleware CORS 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
