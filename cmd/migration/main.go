package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"gitlab.com/dirk.krummacker/birthday-service/internal/config"
	"gitlab.com/dirk.krummacker/birthday-service/internal/logger"
	"gitlab.com/dirk.krummacker/birthday-service/internal/migrations"
	"gitlab.com/dirk.krummacker/birthday-service/internal/store"
)

// Usage example on the command line:
// > DBHOST=localhost:3306 DBUSER=dirk DBPWD=bullo92 go run main.go -direction=up
func main() {
	direction := flag.String("direction", "up", "up or down")
	steps := flag.Int("steps", 0, "number of migrations to apply, 0 means all")
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

	// The schema files contain several statements each.
	sqlDB, err := store.CreateDatabase(cfg.DSN() + "&multiStatements=true")
	if err != nil {
		log.Fatal("Could not open database", "error", err)
	}
	defer sqlDB.Close()

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		log.Fatal("Could not read migrations", "error", err)
	}
	driver, err := migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	if err != nil {
		log.Fatal("Could not create migration driver", "error", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, cfg.DBName, driver)
	if err != nil {
		log.Fatal("Could not create migrator", "error", err)
	}

	switch {
	case *direction == "up" && *steps == 0:
		err = m.Up()
	case *direction == "up":
		err = m.Steps(*steps)
	case *direction == "down" && *steps == 0:
		err = m.Down()
	case *direction == "down":
		err = m.Steps(-*steps)
	default:
		log.Fatal("Unknown direction", "direction", *direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("Migration failed", "direction", *direction, "error", err)
	}
	version, dirty, _ := m.Version()
	log.Info("Migration finished", "direction", *direction, "version", version, "dirty", dirty)
}
