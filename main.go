package main

import (
	"flag"
	"log"
	"strings"

	"expensetracker/config"
	"expensetracker/database"
	"expensetracker/logger"
	"expensetracker/middleware"
	"expensetracker/router"

	"go.uber.org/zap"
)

// @title 报销系统 API
// @version 1.0
// @description 员工报销系统 API：消费记录、报销单提交与审批、票据上传、审批通过后生成 PDF
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var (
	configFile  string
	port        string
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "外部配置文件路径（可选）")
	flag.StringVar(&configFile, "c", "", "外部配置文件路径（简写）")
	flag.StringVar(&port, "port", "", "监听端口，如: 8080 或 :8080")
	flag.StringVar(&port, "p", "", "监听端口（简写）")
	flag.BoolVar(&showVersion, "version", false, "显示版本信息")
	flag.BoolVar(&showVersion, "v", false, "显示版本信息（简写）")
}

func main() {
	flag.Parse()

	if showVersion {
		log.Println("报销系统 v1.0.0")
		return
	}

	// 加载配置（内置配置 + 可选的外部配置覆盖）
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	flush, err := logger.Init(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer flush()
	l := zap.L()

	// 命令行参数覆盖端口配置
	if port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Server.Port = port
		l.Info("命令行指定端口", zap.String("port", port))
	}

	config.PrintConfig()

	if err := database.Init(cfg); err != nil {
		l.Fatal("数据库初始化失败", zap.Error(err))
	}

	// 报销业务配置支持运行期更新：外部配置文件变化或管理员接口修改
	settings := config.NewSettings(cfg.Expense)
	if err := config.WatchSettings(configFile, settings); err != nil {
		l.Warn("监听配置文件失败，报销配置不会自动重新加载", zap.Error(err))
	}

	middleware.InitJWT(cfg)

	deps := router.NewDependencies(cfg, settings, l)
	r := router.SetupRouter(cfg, settings, deps, l)

	l.Info("报销系统已启动",
		zap.String("api", "http://localhost"+cfg.Server.Port+"/api/v1/"),
		zap.String("swagger", "http://localhost"+cfg.Server.Port+"/swagger/index.html"))

	if err := r.Run(cfg.Server.Port); err != nil {
		l.Fatal("服务器启动失败", zap.Error(err))
	}
}
