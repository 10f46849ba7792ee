package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/CarRentLink/CarRentLink/internal/catalog"
	"github.com/CarRentLink/CarRentLink/internal/common/config"
	"github.com/CarRentLink/CarRentLink/internal/common/db"
	"github.com/CarRentLink/CarRentLink/internal/common/logger"
	"github.com/CarRentLink/CarRentLink/internal/common/middleware"
	"github.com/CarRentLink/CarRentLink/internal/common/server"
	"github.com/CarRentLink/CarRentLink/internal/common/tracing"
	"github.com/CarRentLink/CarRentLink/internal/events"
	"github.com/CarRentLink/CarRentLink/internal/fleet"
	"github.com/CarRentLink/CarRentLink/internal/reservation"
	"github.com/CarRentLink/CarRentLink/internal/upstream"
	"github.com/gin-gonic/gin"
)

var (
	configPath      = flag.String("config", "configs/rental-service.json", "配置文件路径")
	consulConfigKey = flag.String("consul-config-key", "", "从 Consul KV 加载配置的 key（优先于本地文件）")
	consulAddr      = flag.String("consul-addr", "localhost", "Consul 地址（配合 -consul-config-key）")
	consulPort      = flag.Int("consul-port", 8500, "Consul 端口（配合 -consul-config-key）")
)

func loadConfig() (*config.Config, error) {
	if *consulConfigKey != "" {
		return config.LoadConfigFromConsulKV(*consulAddr, *consulPort, *consulConfigKey)
	}
	return config.LoadConfig(*configPath)
}

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	_, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&catalog.CarModel{},
		&fleet.Vehicle{},
		&fleet.MaintenanceRecord{},
		&reservation.Reservation{},
	); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	// 事件出口：Redis 不可达时退化为 Nop，不阻塞引擎启动
	var publisher reservation.Publisher
	rdb := events.NewRedisClient(cfg.Redis)
	redisPub := events.NewRedisPublisher(rdb, cfg.Redis.EventChannel)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisPub.Ping(pingCtx); err != nil {
		log.Warnf("redis unreachable, lifecycle events disabled: %v", err)
		publisher = reservation.NopPublisher{}
	} else {
		publisher = redisPub
	}
	cancel()

	// 仓储与领域组件
	catalogRepo := catalog.NewRepo(gormDB)
	fleetRepo := fleet.NewRepo(gormDB)
	resRepo := reservation.NewRepo(gormDB)

	checker := reservation.NewChecker(resRepo, fleetRepo, cfg.Rental.BufferDays)
	gate := reservation.NewGate(cfg.Rental.CategoryMinScore)
	matcher := reservation.NewMatcher(fleetRepo, catalogRepo, checker, gate)
	releases := reservation.NewReleaseScheduler(fleetRepo, resRepo, log)

	svc := reservation.NewService(reservation.Deps{
		Repo:     resRepo,
		Vehicles: fleetRepo,
		Models:   catalogRepo,
		Matcher:  matcher,
		Checker:  checker,
		Locks:    reservation.NewKeyedLocks(),
		Score:    reservation.NewScoreRule(cfg.Rental.Score),
		Payment:  upstream.NewPaymentClient(cfg.Upstream.Payment, log),
		Tracking: upstream.NewTrackingClient(cfg.Upstream.Tracking, log),
		Identity: upstream.NewIdentityClient(cfg.Upstream.Identity, log),
		Events:   publisher,
		Releases: releases,
		Log:      log,
	})

	// 重启恢复：从持久化的缓冲还车时间重建延迟释放定时器
	rearmCtx, cancelRearm := context.WithTimeout(context.Background(), 10*time.Second)
	if err := releases.Rearm(rearmCtx); err != nil {
		log.Errorf("rearm deferred releases failed: %v", err)
	}
	cancelRearm()
	defer releases.Stop()

	// 过期扫描
	sweeper := reservation.NewSweeper(resRepo, publisher, log,
		time.Duration(cfg.Rental.PendingGraceMinutes)*time.Minute,
		time.Duration(cfg.Rental.SweepIntervalSeconds)*time.Second)
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP 表面：预订引擎 + 车队管理 + 车型目录
	limiter := middleware.NewTokenBucket(20, 10)
	resHandler := reservation.NewHandler(svc, cfg.Auth, limiter, log)
	fleetHandler := fleet.NewHandler(fleetRepo, cfg.Auth, log)
	catalogHandler := catalog.NewHandler(catalogRepo, cfg.Auth, log)

	if err := server.RunHTTPServer(cfg, log, func(r *gin.Engine) error {
		r.Use(tracing.GinMiddleware(cfg.Server.Name))
		resHandler.Register(r)
		fleetHandler.Register(r)
		catalogHandler.Register(r)
		return nil
	}); err != nil {
		log.Fatalf("rental-service exited with error: %v", err)
	}
}
