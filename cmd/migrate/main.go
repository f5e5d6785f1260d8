package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli"

	"github.com/stuKim0221/smart-lotto/config"
	"github.com/stuKim0221/smart-lotto/database"
	"github.com/stuKim0221/smart-lotto/logger"
)

func main() {
	app := cli.NewApp()
	app.Name = "migrate"
	app.Usage = "manage the draw store schema"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "database-url",
			Usage:  "Postgres connection URL",
			EnvVar: "DATABASE_URL",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "up",
			Usage:  "apply all pending migrations",
			Action: withDB(database.Migrate),
		},
		{
			Name:   "down",
			Usage:  "roll back the most recent migration",
			Action: withDB(database.Rollback),
		},
		{
			Name:  "version",
			Usage: "print the applied migration version",
			Action: withDB(func(db *sqlx.DB) error {
				version, dirty, err := database.Version(db)
				if err != nil {
					return err
				}
				fmt.Printf("version %d (dirty: %t)\n", version, dirty)
				return nil
			}),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("%v", err)
	}
}

func withDB(run func(db *sqlx.DB) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		// 从环境变量获取数据库 URL (.env included)
		dbURL := c.GlobalString("database-url")
		if dbURL == "" {
			dbURL = config.Load().DatabaseURL
		}
		if dbURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}

		db, err := database.Connect(dbURL)
		if err != nil {
			return err
		}
		defer db.Close()

		logger.Println("Connected to database successfully")
		if err := run(db); err != nil {
			return err
		}
		logger.Printf("✅ %s completed", c.Command.Name)
		return nil
	}
}
