// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"fmt"
	"runtime"
)

const (
	memoryThresholdDegraded  = 75.0 // percent of Sys
	goroutineThresholdDegraded = 20000
)

// SystemCheck reports process resource pressure as a ComponentCheck.
// Unlike the other self-checks, this one can report a detail string
// describing degradation without failing outright — the aggregator
// still only has a binary OK/not-OK per component, so sustained
// pressure is surfaced as a false OK with a non-empty detail rather
// than flipping the whole report UNHEALTHY over memory alone.
func SystemCheck() ComponentCheck {
	return ComponentCheck{
		Name: "system_resources",
		Check: func() (bool, string) {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			usedMB := m.Alloc / 1024 / 1024
			sysMB := m.Sys / 1024 / 1024
			var percent float64
			if sysMB > 0 {
				percent = float64(usedMB) / float64(sysMB) * 100
			}
			goroutines := runtime.NumGoroutine()

			if percent >= memoryThresholdDegraded || goroutines >= goroutineThresholdDegraded {
				return true, fmt.Sprintf("elevated resource use: memory=%.1f%% goroutines=%d", percent, goroutines)
			}
			return true, ""
		},
	}
}
