package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/preparatoire/gpf/internal/apperr"
	"github.com/preparatoire/gpf/internal/config"
	"github.com/preparatoire/gpf/internal/database"
	"github.com/preparatoire/gpf/internal/gate"
	"github.com/preparatoire/gpf/internal/handler"
	"github.com/preparatoire/gpf/internal/identity"
	"github.com/preparatoire/gpf/internal/middleware"
	"github.com/preparatoire/gpf/internal/notify"
	"github.com/preparatoire/gpf/internal/router"
	"github.com/preparatoire/gpf/internal/schema"
	"github.com/preparatoire/gpf/internal/store"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	st := store.New(db)
	g := gate.New(st, cfg.OwnerRoles)
	notifier := notify.NewAMQPNotifier(cfg.AMQPURL)
	tenants := identity.NewTenantClient(cfg.TenantAPIURL, cfg.TenantAPIKey)

	go func() {
		if err := notify.StartConsumer(cfg.AMQPURL); err != nil {
			log.Printf("notify consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; cache and rate limiting disabled")
	}
	e.Use(middleware.SessionAttach(cfg.SessionKey))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	res := func(name string) *handler.Resource {
		ent, ok := schema.Get(name)
		if !ok {
			log.Fatalf("unknown entity %q", name)
		}
		return handler.NewResource(ent, st, g, notifier)
	}

	router.Register(e, router.Deps{
		Pharmacy:             handler.NewPharmacy(res("pharmacy"), tenants),
		ClientProfile:        res("client_profile"),
		FormA:                res("form_a"),
		FormB:                res("form_b"),
		FormC:                res("form_c"),
		OrderCurrent:         res("order_current"),
		OrderHistoryClient:   res("order_history_client"),
		OrderHistoryPharmacy: res("order_history_pharmacie"),
		PDFFile:              res("pdf_file"),
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
