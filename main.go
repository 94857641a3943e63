package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Kellyjunior6387/flixshare/cache"
	"github.com/Kellyjunior6387/flixshare/client"
	"github.com/Kellyjunior6387/flixshare/config"
	"github.com/Kellyjunior6387/flixshare/controller"
	"github.com/Kellyjunior6387/flixshare/intent"
	"github.com/Kellyjunior6387/flixshare/kafka"
	"github.com/Kellyjunior6387/flixshare/middleware"
	"github.com/Kellyjunior6387/flixshare/model"
	"github.com/Kellyjunior6387/flixshare/mpesa"
	"github.com/Kellyjunior6387/flixshare/reconciler"
	"github.com/Kellyjunior6387/flixshare/routes"
)

func initDB(cfg *config.Config) *gorm.DB {
	dsn := "host=" + cfg.DBHost +
		" user=" + cfg.DBUser +
		" password=" + cfg.DBPass +
		" dbname=" + cfg.DBName +
		" port=" + cfg.DBPort +
		" sslmode=disable TimeZone=UTC"

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect database:", err)
	}

	if err := db.AutoMigrate(
		&model.Room{},
		&model.RoomMember{},
		&model.PaymentIntent{},
		&model.Transaction{},
	); err != nil {
		log.Fatal("migration failed:", err)
	}

	return db
}

func main() {
	cfg := config.Load()

	db := initDB(cfg)
	rdb := cache.Connect(cfg.RedisAddr, cfg.RedisPass)
	producer := kafka.NewProducer(cfg.KafkaBroker)

	intents := intent.NewStore(intent.NewRedisCache(rdb), db)
	gateway := mpesa.NewClient(
		cfg.MpesaConsumerKey,
		cfg.MpesaConsumerSecret,
		cfg.MpesaShortcode,
		cfg.MpesaPasskey,
		cfg.MpesaBaseURL,
		cfg.MpesaCallbackURL,
	)

	pc := &controller.PaymentController{
		DB:         db,
		Gateway:    gateway,
		Intents:    intents,
		Reconciler: reconciler.New(db, intents, producer),
	}
	rc := &controller.RoomController{
		DB:   db,
		Auth: client.NewAuthClient(cfg.AuthServiceURL),
	}

	app := fiber.New()
	app.Use(logger.New())

	routes.Register(app, middleware.AuthRequired(cfg.AuthServiceURL, rdb), pc, rc)

	log.Println("flixshare payment service listening on :" + cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("fiber error:", err)
	}
}
