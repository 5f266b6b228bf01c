package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"yield/common/database"
	"yield/common/logger"
	commonmqtt "yield/common/mqtt"
	commonredis "yield/common/redis"
	"yield/internal/config"
	httpapi "yield/internal/http"
	"yield/internal/identity"
	"yield/internal/notify"
	"yield/internal/repository"
	"yield/internal/service"
	"yield/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "yield")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.String("dsn", cfg.Database.Redacted()), zap.Error(err))
	}
	defer database.Close(db)

	locationsRepo := repository.NewPostgresLocationsRepository(db)
	itemsRepo := repository.NewPostgresTrackedItemsRepository(db)
	alertsRepo := repository.NewPostgresAlertsRepository(db)
	auditRepo := repository.NewPostgresAuditRepository(db)
	calibrationRepo := repository.NewPostgresCalibrationRepository(db)
	trainingRepo := repository.NewPostgresTrainingRepository(db)
	var profilesRepo repository.ProfilesRepository = repository.NewPostgresProfilesRepository(db)

	checks := map[string]httpapi.HealthCheck{
		"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
	}

	var publishers notify.Multi
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = commonredis.NewRedisClient(&cfg.Redis.Conn)
		defer commonredis.Close(redisClient)
		if err := commonredis.Ping(context.Background(), redisClient); err != nil {
			log.Warn("redis unreachable at startup, profile cache will fall through", zap.Error(err))
		}
		profilesRepo = store.NewCachedProfiles(profilesRepo, store.NewRedisKV(redisClient), cfg.Redis.ProfileCacheTTL, log)
		publishers = append(publishers, notify.NewStreamPublisher(redisClient, cfg.Redis.AlertStream, cfg.Redis.StreamMaxLen))
		checks["redis"] = func(ctx context.Context) error { return commonredis.Ping(ctx, redisClient) }
	}
	if cfg.MQTT.Enabled {
		mqttClient, err := commonmqtt.NewClient(&cfg.MQTT.Conn, log)
		if err != nil {
			log.Warn("mqtt disabled: connect failed", zap.String("broker", cfg.MQTT.Conn.Broker), zap.Error(err))
		} else {
			defer mqttClient.Disconnect()
			checks["mqtt"] = func(context.Context) error {
				if !mqttClient.IsConnected() {
					return errors.New("mqtt not connected")
				}
				return nil
			}
			publishers = append(publishers, notify.Filter{
				Next:  notify.NewMQTTPublisher(mqttClient, cfg.MQTT.TopicPrefix),
				Kinds: map[string]bool{notify.KindVehicleStatus: true, notify.KindAlertRaised: true},
			})
		}
	}
	var publisher notify.Publisher = notify.Nop{}
	if len(publishers) > 0 {
		publisher = notify.Logged{Next: publishers, Logger: log}
	}

	idp := identity.NewClient(identity.Config{
		BaseURL:    cfg.Identity.URL,
		AnonKey:    cfg.Identity.AnonKey,
		ServiceKey: cfg.Identity.ServiceKey,
		Timeout:    cfg.Identity.Timeout,
		RetryCount: cfg.Identity.RetryCount,
	}, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := httpapi.NewMetrics(reg)

	userService := service.NewUserService(profilesRepo, locationsRepo, idp, auditRepo, metrics, log)
	alertService := service.NewAlertService(alertsRepo, auditRepo, publisher, metrics, log)
	vehicleService := service.NewVehicleService(locationsRepo, profilesRepo, alertService, auditRepo, publisher, metrics, log)
	itemService := service.NewTrackedItemService(itemsRepo, locationsRepo, profilesRepo, auditRepo, metrics, log)
	auditService := service.NewAuditService(auditRepo, metrics, log)
	calibrationService := service.NewCalibrationService(calibrationRepo, itemsRepo, locationsRepo, profilesRepo, auditRepo, metrics, log)
	trainingService := service.NewTrainingService(trainingRepo, itemsRepo, locationsRepo, profilesRepo, auditRepo, metrics, log)

	router := httpapi.NewRouter(httpapi.NewAuthenticator(idp, userService, log), metrics, log)
	router.RegisterUserRoutes(httpapi.NewUserHandler(userService, log))
	router.RegisterAlertRoutes(httpapi.NewAlertHandler(alertService, log))
	router.RegisterVehicleRoutes(httpapi.NewVehicleHandler(vehicleService, log))
	router.RegisterItemRoutes(httpapi.NewItemHandler(itemService, log))
	router.RegisterAuditRoutes(httpapi.NewAuditHandler(auditService, log))
	router.RegisterCalibrationRoutes(httpapi.NewCalibrationHandler(calibrationService, log))
	router.RegisterTrainingRoutes(httpapi.NewTrainingHandler(trainingService, log))
	router.RegisterHealthRoutes(httpapi.NewHealthHandler(checks, log))
	router.HandleHandler("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("http server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
