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

package version

import "github.com/procwise/localcluster/pkg/constants"

// appVersion is stamped at build time via
//
//	-ldflags "-X github.com/procwise/localcluster/pkg/version.appVersion=1.2.3"
//
// and stays at the development default otherwise.
var appVersion = constants.DefaultAppVersion

// GetAppVersion returns the harness version.
func GetAppVersion() string {
	return appVersion
}
