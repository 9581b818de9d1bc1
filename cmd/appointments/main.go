package main

import (
	"clinicbook/internal/appointments/handler"
	"clinicbook/internal/appointments/repository"
	"clinicbook/internal/appointments/service"
	"clinicbook/internal/appointments/validator"
	directoryrepo "clinicbook/internal/directory/repository"
	"clinicbook/internal/sweeper"
	"clinicbook/pkg/app"
	"clinicbook/pkg/config"
	"clinicbook/pkg/kafka"
	kafka_config "clinicbook/pkg/kafka/config"
	middleware "clinicbook/pkg/kafka/middleware"
	"clinicbook/pkg/sealer"
)

const (
	ServiceName = "appointments"

	EventsTopic    = "appointments.events"
	EventsDLQTopic = "appointments.events.dlq"
)

// @title Clinicbook Appointments API
// @version 1.0
// @description Booking, status transitions, and rescheduling of appointments.
// @BasePath /
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Appointments service")

	producer := initProducer(cfg)
	appointmentService := initServices(cfg, producer)

	expirySweeper := sweeper.NewSweeper(appointmentService, cfg)
	expirySweeper.Start()

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewAppointmentHandler(appointmentService, initSealer(cfg), cfg.Log))
	serverApp.RegisterOnShutdown(expirySweeper.Stop)
	if producer != nil {
		serverApp.RegisterOnShutdown(func() {
			if err := producer.Close(); err != nil {
				cfg.Log.Warn("Failed to close Kafka producer", "error", err)
			}
		})
	}
	serverApp.Run()
}

// initSealer returns nil when no key is configured, which disables opaque
// booking references.
func initSealer(cfg *config.Config) *sealer.Sealer {
	if cfg.SealerKey == "" {
		cfg.Log.Info("Sealer key not configured, booking references disabled")
		return nil
	}
	s, err := sealer.New(cfg.SealerKey)
	if err != nil {
		cfg.Log.Fatal("Invalid sealer key", "error", err)
	}
	return s
}

// initProducer returns nil when no brokers are configured, which disables
// event publishing without touching the write path.
func initProducer(cfg *config.Config) *kafka.Producer {
	kafkaCfg := kafka_config.Load()
	if !kafkaCfg.Configured() {
		cfg.Log.Info("Kafka brokers not configured, event publishing disabled")
		return nil
	}

	producer, err := kafka.NewProducer(kafkaCfg, EventsTopic, EventsDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(middleware.LoggingProducerMiddleware())
	}

	cfg.Log.Info("Kafka producer initialized", "topic", EventsTopic)
	return producer
}

func initServices(cfg *config.Config, producer *kafka.Producer) service.AppointmentService {
	appointmentValidator := validator.NewAppointmentValidator(cfg.Log)
	appointmentRepo := repository.NewMongoAppointmentRepository(cfg)
	lockRepo := repository.NewMongoDoctorLockRepository(cfg)
	directoryRepo := directoryrepo.NewMongoDirectoryRepository(cfg)

	// A typed nil would make the publisher interface non-nil, so it is only
	// assigned when a producer actually exists.
	var publisher service.EventPublisher
	if producer != nil {
		publisher = producer
	}

	appointmentService := service.NewAppointmentService(
		appointmentRepo,
		lockRepo,
		directoryRepo,
		appointmentValidator,
		publisher,
		cfg,
	)

	cfg.Log.Info("Appointments service initialized", "database", cfg.MongoDatabaseName)
	return appointmentService
}
