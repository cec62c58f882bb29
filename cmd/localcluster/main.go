// Copyright 2026 Procwise GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/procwise/localcluster/pkg/cluster"
	"github.com/procwise/localcluster/pkg/config"
	"github.com/procwise/localcluster/pkg/logger"
	"github.com/procwise/localcluster/pkg/memberagent"
	"github.com/procwise/localcluster/pkg/metrics"
	"github.com/procwise/localcluster/pkg/sentry"
	"github.com/procwise/localcluster/pkg/version"
)

func main() {
	// Initialize the global logger first thing
	logger.Initialize()

	// Initialize Sentry
	sentry.InitSentry(version.GetAppVersion())
	defer sentry.Flush()

	if len(os.Args) > 1 && os.Args[1] == "member" {
		if err := runMember(os.Args[2:]); err != nil {
			logger.For(logger.ComponentAgent).Errorf("Member exited with error: %v", err)
			os.Exit(1)
		}

		return
	}

	if err := runController(); err != nil {
		os.Exit(1)
	}
}

// runMember is the entry point of a spawned member process. The launcher
// hands it its identity and the loader coordinates on the command line.
func runMember(args []string) error {
	flags := flag.NewFlagSet("member", flag.ContinueOnError)
	name := flags.String("name", "", "unique member name")
	host := flags.String("host", "", "loopback address to bind")
	loader := flags.String("loader", "", "loader address to register with")
	allowedHosts := flags.String("allowed-hosts", "", "comma-separated list of bindable addresses")
	cookie := flags.String("cookie", "", "shared cluster cookie")

	if err := flags.Parse(args); err != nil {
		return err
	}

	var allowed []string
	if *allowedHosts != "" {
		allowed = strings.Split(*allowedHosts, ",")
	}

	agent, err := memberagent.NewAgent(memberagent.Config{
		Name:         *name,
		Host:         *host,
		LoaderAddr:   *loader,
		AllowedHosts: allowed,
		Cookie:       *cookie,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return agent.Run(ctx)
}

// runController starts a cluster from the configuration file or environment
// and keeps it alive until the process is signalled or a linked member dies.
func runController() error {
	log := logger.For(logger.ComponentCore)
	log.Infof("Starting localcluster %s...", version.GetAppVersion())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to load config: %v", err)

		return err
	}

	if cfg.MetricsPort != 0 {
		server := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.MetricsPort))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown metrics server: %v", err)
			}
		}()
	}

	controller, err := cluster.New(ctx, cfg.InitialMembers, cfg.Options)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create cluster: %v", err)

		return err
	}

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, destroying cluster")
		if err := controller.Destroy(); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to destroy cluster: %v", err)

			return err
		}
	case <-controller.Done():
		if err := controller.Err(); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Cluster terminated: %v", err)

			return err
		}
	}

	return nil
}

func loadConfig() (config.FullConfig, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}

	return config.LoadFromEnv()
}
