package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-playground/validator/v10"
	"github.com/bidhaus/goapi/base/ctx"
	"github.com/bidhaus/goapi/base/database/mongoclient"
	"github.com/bidhaus/goapi/base/database/redisclient"
	"github.com/bidhaus/goapi/base/log"
	"github.com/bidhaus/goapi/base/metrics"
	bValidator "github.com/bidhaus/goapi/base/validator"
	"github.com/bidhaus/goapi/domain/buynow"
	mmiddleware "github.com/bidhaus/goapi/middleware"
	"github.com/bidhaus/goapi/service/bus"
	"github.com/bidhaus/goapi/service/lock"
	"github.com/bidhaus/goapi/service/query"
	"github.com/bidhaus/goapi/service/redis"
	auction_delivery "github.com/bidhaus/goapi/stores/auction/delivery/http"
	auction_repository "github.com/bidhaus/goapi/stores/auction/repository"
	auction_usecase "github.com/bidhaus/goapi/stores/auction/usecase"
	bid_delivery "github.com/bidhaus/goapi/stores/bid/delivery/http"
	bid_repository "github.com/bidhaus/goapi/stores/bid/repository"
	bid_usecase "github.com/bidhaus/goapi/stores/bid/usecase"
	buynow_delivery "github.com/bidhaus/goapi/stores/buynow/delivery/http"
	buynow_repository "github.com/bidhaus/goapi/stores/buynow/repository"
	buynow_usecase "github.com/bidhaus/goapi/stores/buynow/usecase"
	hc_delivery "github.com/bidhaus/goapi/stores/healthcheck/delivery/http"
	hc_repo "github.com/bidhaus/goapi/stores/healthcheck/repository"
	hc_usecase "github.com/bidhaus/goapi/stores/healthcheck/usecase"
	order_repository "github.com/bidhaus/goapi/stores/order/repository"
	order_usecase "github.com/bidhaus/goapi/stores/order/usecase"
	outbox_repository "github.com/bidhaus/goapi/stores/outbox/repository"
	outbox_usecase "github.com/bidhaus/goapi/stores/outbox/usecase"
	wallet_delivery "github.com/bidhaus/goapi/stores/wallet/delivery/http"
	wallet_repository "github.com/bidhaus/goapi/stores/wallet/repository"
	wallet_usecase "github.com/bidhaus/goapi/stores/wallet/usecase"
)

func init() {
	pflag.String("config", "infra/configs/config.yaml", "path to the config file")
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)

	viper.SetConfigType("yaml")
	viper.SetConfigFile(viper.GetString("config"))
	err := viper.ReadInConfig()
	if err != nil {
		panic(err)
	}

	if viper.GetBool(`debug`) {
		log.Log().Info("Service RUN on DEBUG mode")
	}
}

func main() {
	// init echo
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{}))
	e.Use(middleware.RequestID())
	middL := mmiddleware.InitMiddleware()
	e.Use(middL.ResponseLogger())
	e.Use(middL.AddContext())
	e.Use(middleware.CORS())
	e.Validator = bValidator.NewCustomValidator(validator.New())

	context := ctx.Background()

	// init mongo client
	context.Info("init mongo")
	uri := viper.GetString("mongo.uri")
	authDBName := viper.GetString("mongo.authDBName")
	dbName := viper.GetString("mongo.dbName")
	enableSSL := viper.GetBool("mongo.enableSSL")
	checkIndex := viper.GetBool("mongo.checkIndex")
	mongoClient := mongoclient.MustConnectMongoClient(uri, authDBName, dbName, enableSSL, true, 2)
	q := query.New(mongoClient, checkIndex)

	// init redis service
	context.Info("init redis cache")
	redisCacheName := viper.GetString("redis_cache.name")
	redisCacheURI := viper.GetString("redis_cache.uri")
	redisCachePwd := viper.GetString("redis_cache.password")
	redisCachePoolMultiplier := viper.GetFloat64("redis_cache.poolMultiplier")
	redisCachePool := redisclient.MustConnectRedis(redisCacheURI, redisCachePwd, redisclient.RedisParam{
		PoolMultiplier: redisCachePoolMultiplier,
		Retry:          true,
	})
	redisCache := redis.New(redisCacheName, metrics.New(redisCacheName), &redis.Pools{
		Src: redisCachePool,
	})

	mmiddleware.SetupCache(redisCache)

	lockService := lock.New(redisCache)

	// the bus lives in this process, so every consumer of the buy-now
	// saga has to be wired here alongside the http handlers
	eventBus := bus.NewMemory()

	// construct repository, usecase and delivery
	hcRepo := hc_repo.New(mongoClient, redisCache)
	auctionRepo := auction_repository.NewAuctionRepo(q)
	bidRepo := bid_repository.NewBidRepo(q)
	autoBidRepo := bid_repository.NewAutoBidRepo(q)
	walletRepo := wallet_repository.NewWalletRepo(q)
	transactionRepo := wallet_repository.NewTransactionRepo(q)
	orderRepo := order_repository.NewOrderRepo(q)
	outboxRepo := outbox_repository.NewOutboxRepo(q)
	sagaStateRepo := buynow_repository.NewStateRepo()

	hc := hc_usecase.New(hcRepo)
	auction := auction_usecase.New(&auction_usecase.AuctionUseCaseCfg{
		AuctionRepo: auctionRepo,
		OutboxRepo:  outboxRepo,
		Query:       q,
	})
	engine := bid_usecase.New(&bid_usecase.EngineCfg{
		BidRepo:     bidRepo,
		AutoBidRepo: autoBidRepo,
		AuctionUC:   auction,
		OutboxRepo:  outboxRepo,
		Lock:        lockService,
		Query:       q,
	})
	wallet := wallet_usecase.New(&wallet_usecase.WalletUseCaseCfg{
		WalletRepo:      walletRepo,
		TransactionRepo: transactionRepo,
		Lock:            lockService,
		Query:           q,
	})
	order := order_usecase.New(&order_usecase.OrderUseCaseCfg{
		OrderRepo:  orderRepo,
		OutboxRepo: outboxRepo,
		Query:      q,
	})
	coordinator := buynow_usecase.New(&buynow_usecase.CoordinatorCfg{
		StateRepo: sagaStateRepo,
		AuctionUC: auction,
		Bus:       eventBus,
		Lock:      lockService,
		Timeout:   viper.GetDuration("buynow.sagaTimeout"),
	})

	auction_usecase.Subscribe(eventBus, auction)
	order_usecase.Subscribe(eventBus, order)
	buynow_usecase.Subscribe(eventBus, coordinator)
	eventBus.Subscribe(buynow.TopicSagaCompleted, wallet_usecase.SettleBuyNow(wallet))

	dispatcher := outbox_usecase.NewDispatcher(&outbox_usecase.DispatcherCfg{
		OutboxRepo:   outboxRepo,
		Bus:          eventBus,
		PollInterval: viper.GetDuration("outbox.pollInterval"),
		BatchSize:    viper.GetInt("outbox.batchSize"),
	})
	dispatcher.Start(context)

	sweeper := buynow_usecase.NewSweeper(&buynow_usecase.SweeperCfg{
		Coordinator: coordinator,
		Interval:    viper.GetDuration("buynow.sweepInterval"),
	})
	sweeper.Start(context)

	hc_delivery.New(e, hc)
	auction_delivery.New(e, auction)
	bid_delivery.New(e, engine)
	wallet_delivery.New(e, wallet)
	buynow_delivery.New(e, coordinator)

	go func() {
		if err := e.Start(viper.GetString("server.address")); err != nil && err != http.ErrServerClosed {
			log.Log().WithField("err", err).Error("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 10 seconds.
	// Use a buffered channel to avoid missing signals as recommended for signal.Notify
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-quit
	log.Log().WithField("signal", sig).Info("received signal")
	shutdownCtx, cancel := ctx.WithTimeout(context, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Log().WithField("err", err).Error("shutting down the server")
	} else {
		log.Log().Info("shutdown server successfully")
	}

	// drain background work after the http surface is down
	sweeper.Stop()
	dispatcher.Stop()
	eventBus.Close()
}
