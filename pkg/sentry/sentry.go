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

package sentry

import (
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/procwise/localcluster/pkg/constants"
)

var enabled bool

// InitSentry initializes error reporting for the given app version. Reporting
// stays disabled for local development builds (the default unstamped version)
// and when no SENTRY_DSN is configured, so test-harness failures on developer
// machines never leave the host.
func InitSentry(appVersion string) {
	if appVersion == "" || appVersion == constants.DefaultAppVersion {
		zap.S().Debug("Sentry disabled for local development build")

		return
	}

	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		zap.S().Debug("Sentry disabled, no DSN configured")

		return
	}

	environment := "development"

	version, err := semver.NewVersion(appVersion)
	if err != nil {
		zap.S().Errorf("Failed to parse app version, using development environment: %s", err)
	} else if version.Prerelease() == "" {
		environment = "production"
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:           dsn,
		Environment:   environment,
		Release:       "localcluster@" + appVersion,
		EnableTracing: false,
	})
	if err != nil {
		zap.S().Errorf("Failed to initialize Sentry: %s", err)

		return
	}

	enabled = true
}

// Flush waits for buffered events to be sent. Call before process exit.
func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}

func captureIssue(level sentry.Level, err error) {
	if !enabled {
		return
	}

	event := sentry.NewEvent()
	event.Level = level
	event.Message = err.Error()
	sentry.CaptureEvent(event)
}
