package main

import (
	"context"
	"fmt"
	"os"

	"gitlab.com/dirk.krummacker/birthday-service/internal/app"
	"gitlab.com/dirk.krummacker/birthday-service/internal/config"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/service"
)

// Usage example on the command line:
// > PORT=8080 DBUSER=dirk DBPWD=bullo92 GIN_MODE=release GIN_LOGGING=OFF go run main.go
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("could not load configuration", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Println("could not create logger", err)
		os.Exit(1)
	}
	defer log.Sync()

	st, sqlDB, err := app.OpenStore(*cfg)
	if err != nil {
		log.Fatal("Could not open database", "error", err)
	}
	defer sqlDB.Close()
	clk := app.Clock(*cfg, log)

	var reminders service.ReminderRunner
	job, closeJob, err := app.ReminderJob(context.Background(), *cfg, st, clk, log)
	if err != nil {
		log.Warn("Reminder runs on demand are disabled", "error", err)
	} else {
		defer closeJob()
		reminders = job
	}

	router := service.New(*cfg, st, reminders, clk, log).Router()
	log.Info("Service starting", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Service stopped", "error", err)
	}
}
