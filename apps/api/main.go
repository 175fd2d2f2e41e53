package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	echoapi "github.com/kymoni/elimika/apps/api/echo"
	"github.com/kymoni/elimika/core"
	"github.com/kymoni/elimika/core/qa"
	"github.com/kymoni/elimika/core/user"
	emailsvc "github.com/kymoni/elimika/services/email"
	logsvc "github.com/kymoni/elimika/services/logger"
	lmssvc "github.com/kymoni/elimika/services/lms"
	"github.com/kymoni/elimika/storage/database"
	dummydb "github.com/kymoni/elimika/storage/database/dummy"
	sqlxrepos "github.com/kymoni/elimika/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
		logger.Enable(true)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// repositories: local dev runs fully in-memory, deployed envs use the
	// accounts DB and the live upstream service
	var (
		usrRepo user.Repository
		qaRepo  qa.Repository
	)
	if conf.Debug {
		db, err := dummydb.Open()
		if err != nil {
			log.Fatalf("setting up dummy database: %v", err)
		}
		repo := dummydb.NewQARepository(db)
		seedDemoData(repo)
		usrRepo = dummydb.NewUserRepository(db)
		qaRepo = repo
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			log.Fatalf("setting up database: %v", err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				logger.Error("failed to close DB", err)
			}
		}()
		usrRepo = sqlxrepos.NewUserRepository(db)
		qaRepo = lmssvc.NewClient(conf, logger)
	}

	usrSvc := user.NewService(usrRepo)
	qaSvc := qa.NewService(qaRepo, logger, mailSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	user.RegisterValidations(validate, translator)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			QASvc:      qaSvc,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		log.Fatalf("server error: %v", err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				log.Fatalf("could not force stop server: %v", err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(db); err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// seedDemoData loads a small sampling fixture so the workflow is exercisable
// out of the box in local dev.
func seedDemoData(repo *dummydb.QARepository) {
	repo.SeedCourse(
		qa.Course{ID: "crs-100", Name: "Health and Safety L2", Ref: "ext-100"},
		[]interface{}{
			map[string]interface{}{"plan_id": "12", "plan_name": "Spring Sampling Plan"},
			map[string]interface{}{"plan_id": "15", "plan_name": "Summer Sampling Plan"},
		},
		map[string][]qa.LearnerRow{
			"12": {
				{
					LearnerName:    "Alice Auma",
					RiskPercentage: qa.NewRiskPercentage("50"),
					Units:          []qa.Unit{{Code: "HS-101"}, {Code: "HS-102"}, {Code: "HS-103"}, {Code: "HS-104"}},
				},
				{
					LearnerName:    "Brian Otieno",
					RiskPercentage: qa.NewRiskPercentage("100"),
					Units:          []qa.Unit{{Code: "HS-101"}, {Name: "Workplace Safety"}},
				},
			},
			"15": {
				{
					LearnerName:    "Carol Wanjiru",
					RiskPercentage: qa.NewRiskPercentage("25"),
					Units:          []qa.Unit{{Code: "HS-201"}, {Code: "HS-202"}},
				},
			},
		},
	)
}
