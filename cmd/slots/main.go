package main

import (
	directoryrepo "clinicbook/internal/directory/repository"
	schedulehandler "clinicbook/internal/schedules/handler"
	schedulerepo "clinicbook/internal/schedules/repository"
	scheduleservice "clinicbook/internal/schedules/service"
	schedulevalidator "clinicbook/internal/schedules/validator"
	slothandler "clinicbook/internal/slots/handler"
	slotrepo "clinicbook/internal/slots/repository"
	slotservice "clinicbook/internal/slots/service"
	slotvalidator "clinicbook/internal/slots/validator"
	"clinicbook/pkg/app"
	"clinicbook/pkg/config"
	"clinicbook/pkg/contracts"
)

const ServiceName = "slots"

// @title Clinicbook Slots API
// @version 1.0
// @description Doctor schedules, day offs, and appointment slot generation.
// @BasePath /
func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Slots service")
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(initHandlers(cfg)...)
	serverApp.Run()
}

func initHandlers(cfg *config.Config) []contracts.Handler {
	scheduleValidator := schedulevalidator.NewScheduleValidator(cfg.Log)
	scheduleRepo := schedulerepo.NewMongoScheduleRepository(cfg)
	dayOffRepo := schedulerepo.NewMongoDayOffRepository(cfg)
	directoryRepo := directoryrepo.NewMongoDirectoryRepository(cfg)

	scheduleService := scheduleservice.NewScheduleService(scheduleRepo, scheduleValidator, cfg)
	dayOffService := scheduleservice.NewDayOffService(dayOffRepo, directoryRepo, scheduleValidator, cfg)

	slotValidator := slotvalidator.NewSlotValidator(cfg.Log)
	slotRepo := slotrepo.NewMongoSlotRepository(cfg)
	slotService := slotservice.NewSlotService(
		slotRepo,
		scheduleRepo,
		dayOffRepo,
		directoryRepo,
		slotValidator,
		cfg,
	)

	cfg.Log.Info("Slots service initialized", "database", cfg.MongoDatabaseName)
	return []contracts.Handler{
		schedulehandler.NewScheduleHandler(scheduleService, cfg.Log),
		schedulehandler.NewDayOffHandler(dayOffService, cfg.Log),
		slothandler.NewSlotHandler(slotService, cfg.Log),
	}
}
