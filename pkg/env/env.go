// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

// Env is the deployment environment read from ENV at startup; empty means local.
var Env = detect()

func detect() string {
	v := viper.New()
	_ = v.BindEnv("env", "ENV")
	if e := strings.ToLower(strings.TrimSpace(v.GetString("env"))); e != "" {
		return e
	}
	return Local
}

func IsLocal() bool {
	return Env == Local
}

func IsProduction() bool {
	return Env == Production
}

func IsTesting() bool {
	return Env == Testing
}
