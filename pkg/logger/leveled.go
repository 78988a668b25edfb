// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import "github.com/rs/zerolog"

// LeveledAdapter routes key/value leveled logging, as used by
// go-retryablehttp, to the global logger.
type LeveledAdapter struct {
	// Component is added to every entry when set.
	Component string
}

func (a LeveledAdapter) Debug(msg string, keysAndValues ...interface{}) {
	a.with(Debug().Fields(keysAndValues)).Msg(msg)
}

func (a LeveledAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.with(Info().Fields(keysAndValues)).Msg(msg)
}

func (a LeveledAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.with(Warn().Fields(keysAndValues)).Msg(msg)
}

func (a LeveledAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.with(Error().Fields(keysAndValues)).Msg(msg)
}

func (a LeveledAdapter) with(ev *zerolog.Event) *zerolog.Event {
	if a.Component != "" {
		ev = ev.Str("component", a.Component)
	}
	return ev
}
