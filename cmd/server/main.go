package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incentive/internal/config"
	"incentive/internal/handler"
	"incentive/internal/infrastructure/cache"
	"incentive/internal/infrastructure/database"
	"incentive/internal/infrastructure/lock"
	"incentive/internal/infrastructure/mq"
	"incentive/internal/job"
	"incentive/internal/reward"
	"incentive/internal/service"
	"incentive/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(1)

	// 奖励规则
	settings, err := reward.SettingsFromConfig(cfg.Reward)
	if err != nil {
		log.Fatalf("奖励规则配置错误: %v", err)
	}

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)

	// 初始化 Redis
	redisClient := cache.InitRedis(&cfg.Redis)
	defer redisClient.Close()

	// 初始化 Kafka
	producer, err := mq.NewProducer(&cfg.Kafka)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}
	defer producer.Close()

	notifier := service.NewNotifier(db, producer, cfg.Kafka.Topic.Notification)

	deps := service.Deps{
		DB:        db,
		Locker:    lock.NewLocker(redisClient, time.Duration(cfg.Business.LockTimeoutSeconds)*time.Second),
		Notifier:  notifier,
		Allocator: reward.NewSeededAllocator(cfg.Reward.RandomSeed),
		Settings:  settings,
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, producer, cfg)
	go outboxSender.Start(ctx)

	reconcileJob := job.NewReconcileJob(db, cfg)
	go reconcileJob.Start(ctx)

	router := handler.SetupRouter(deps)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d, 推荐策略: %s", cfg.Server.Port, settings.ReferralPolicy.Name())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	// 等待在途通知投递完，再停止后台任务
	notifier.Wait()
	cancel()

	log.Println("服务已关闭")
}
