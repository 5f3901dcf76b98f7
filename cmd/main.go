/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/neoproj/robo32"
	"github.com/neoproj/robo32/config"
	"github.com/neoproj/robo32/database"
	"github.com/neoproj/robo32/internal/notification"
	oraconn "github.com/neoproj/robo32/internal/ora-conn"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// skipSetup marks commands that only need the configuration, not the store connections.
const skipSetup = "skip-setup"

type Robo32 struct {
	cmd *cobra.Command
}

// robo32Instance holds what every command shares at runtime.
type robo32Instance struct {
	robo32 *robo32.Robo32
	pool   *oraconn.Datasource
	cnf    *config.Configuration
}

func (app *robo32Instance) close() {
	if app.robo32 != nil {
		if err := app.robo32.Close(); err != nil {
			logrus.Warnf("closing robo32: %v", err)
		}
	}
	if app.pool != nil {
		if err := app.pool.Close(); err != nil {
			logrus.Warnf("closing primary store pool: %v", err)
		}
	}
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

func preRun(app *robo32Instance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf

		if cmd.Annotations[skipSetup] == "true" {
			return nil
		}

		newRobo32, pool, err := setupRobo32(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		app.robo32 = newRobo32
		app.pool = pool
		return nil
	}
}

// setupRobo32 connects both stores and builds the service on top of them.
func setupRobo32(cfg *config.Configuration) (*robo32.Robo32, *oraconn.Datasource, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting audit datasource: %v", err)
	}

	pool, err := oraconn.NewDataSource(cfg.PrimaryStore)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to the primary store: %v", err)
	}

	newRobo32, err := robo32.NewRobo32(db, pool)
	if err != nil {
		_ = pool.Close()
		return nil, nil, fmt.Errorf("error creating robo32: %v", err)
	}
	return newRobo32, pool, nil
}

func NewCLI() *Robo32 {
	var configFile string
	app := &robo32Instance{}

	var rootCmd = &cobra.Command{
		Use:   "robo32",
		Short: "Bulk product cloning between the audit and primary stores",
		Run:   func(cmd *cobra.Command, args []string) {},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./robo32.json", "Configuration file for robo32")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(jobCommands(app))
	rootCmd.AddCommand(configCommands(app))

	return &Robo32{cmd: rootCmd}
}

func (w Robo32) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
