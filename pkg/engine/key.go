// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"path"
	"strings"

	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"
)

// Category groups uploaded objects under a key directory.
type Category string

const (
	CategoryFile         Category = "file"
	CategoryEvidence     Category = "evidence"
	CategoryModuleRecord Category = "module-record"
)

var categoryDirs = map[Category]string{
	CategoryFile:         "files",
	CategoryEvidence:     "evidence",
	CategoryModuleRecord: "module-records",
}

// ParseCategory accepts a category name; empty means CategoryFile.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryFile, nil
	}
	if _, ok := categoryDirs[c]; !ok {
		return "", uploaderr.Newf(uploaderr.InvalidRequest, "", "unknown category %q", s)
	}
	return c, nil
}

const maxExtLen = 12

// extension returns the lowercased extension of name including the dot, or
// "" when it is missing or contains anything but ASCII letters and digits.
func extension(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	ext := strings.ToLower(path.Ext(path.Base(name)))
	if len(ext) < 2 || len(ext) > maxExtLen+1 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// newKey derives a unique destination key. The caller's file name only
// contributes its extension.
func (e *Engine) newKey(c Category, fileName string) string {
	return path.Join(e.cfg.KeyPrefix, categoryDirs[c], e.cfg.NewID()+extension(fileName))
}

// checkSession validates the identifiers every session operation takes.
func (e *Engine) checkSession(op, uploadID, key string) error {
	if strings.TrimSpace(uploadID) == "" {
		return uploaderr.New(uploaderr.InvalidRequest, op, "upload id is required")
	}
	if key == "" {
		return uploaderr.New(uploaderr.InvalidRequest, op, "key is required")
	}
	if !strings.HasPrefix(key, e.cfg.KeyPrefix+"/") || path.Clean(key) != key {
		return uploaderr.Newf(uploaderr.InvalidRequest, op, "key %q was not issued by this engine", key)
	}
	return nil
}
