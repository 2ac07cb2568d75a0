package main

import (
	"fmt"

	"go.uber.org/zap"

	"payout-core/internal/model"
	"payout-core/pkg/config"
	"payout-core/pkg/database"
	"payout-core/pkg/logger"
)

// migrate 独立的 Schema 迁移工具
// 生产环境的服务进程不做 AutoMigrate，发布时单独跑这个二进制
func main() {
	config.Init()
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	logger.Info("开始迁移 Schema (GORM AutoMigrate)...")
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}
	logger.Info("数据库迁移完成")
}
