package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gitlab.com/dirk.krummacker/birthday-service/internal/app"
	"gitlab.com/dirk.krummacker/birthday-service/internal/config"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/worker"
)

// Usage example on the command line:
// > REDIS_URL=redis://localhost:6379/0 DBUSER=dirk DBPWD=bullo92 go run main.go
func main() {
	withScheduler := flag.Bool("scheduler", true, "also enqueue the daily reminder run")
	flag.Parse()

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
	if cfg.RedisURL == "" {
		log.Fatal("The worker needs REDIS_URL")
	}

	st, sqlDB, err := app.OpenStore(*cfg)
	if err != nil {
		log.Fatal("Could not open database", "error", err)
	}
	defer sqlDB.Close()
	clk := app.Clock(*cfg, log)

	job, closeJob, err := app.ReminderJob(context.Background(), *cfg, st, clk, log)
	if err != nil {
		log.Fatal("Could not set up reminders", "error", err)
	}
	defer closeJob()

	if *withScheduler {
		stop, err := worker.StartScheduler(cfg.RedisURL, cfg.ReminderSchedule, clk.Location, log)
		if err != nil {
			log.Fatal("Could not start scheduler", "error", err)
		}
		defer stop()
	}

	srv, err := worker.NewServer(cfg.RedisURL, job, log)
	if err != nil {
		log.Fatal("Could not create worker", "error", err)
	}
	if err := srv.Run(); err != nil {
		log.Error("Worker stopped", "error", err)
	}
}
