// Copyright 2024 The lamina Authors. All Rights Reserved.
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

import "runtime"

// Filled in at build time via -ldflags.
var (
	version   = "0.2.0"
	revision  = "unknown"
	buildDate = "unknown"
)

// Info exposes build metadata for the version flags and logs.
var Info = map[string]string{
	"version":   version,
	"revision":  revision,
	"buildDate": buildDate,
	"goVersion": runtime.Version(),
}
