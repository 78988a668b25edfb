// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package s3store

import (
	"context"
	"errors"
	"net/http"

	"github.com/LeeDigitalWorks/zapload/pkg/uploaderr"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var codeKinds = map[string]uploaderr.Kind{
	"NoSuchUpload":     uploaderr.SessionNotFound,
	"EntityTooSmall":   uploaderr.PartTooSmall,
	"InvalidPart":      uploaderr.ManifestMismatch,
	"InvalidPartOrder": uploaderr.ManifestMismatch,
	"MalformedXML":     uploaderr.IncompleteManifest,

	"AccessDenied":          uploaderr.Unauthorized,
	"AccountProblem":        uploaderr.Unauthorized,
	"AllAccessDisabled":     uploaderr.Unauthorized,
	"InvalidAccessKeyId":    uploaderr.Unauthorized,
	"SignatureDoesNotMatch": uploaderr.Unauthorized,
	"ExpiredToken":          uploaderr.Unauthorized,
	"InvalidToken":          uploaderr.Unauthorized,

	"SlowDown":             uploaderr.Throttled,
	"Throttling":           uploaderr.Throttled,
	"ThrottlingException":  uploaderr.Throttled,
	"TooManyRequests":      uploaderr.Throttled,
	"RequestLimitExceeded": uploaderr.Throttled,
	"RequestThrottled":     uploaderr.Throttled,

	"InternalError":      uploaderr.StoreUnavailable,
	"ServiceUnavailable": uploaderr.StoreUnavailable,
	"RequestTimeout":     uploaderr.StoreUnavailable,
}

func isAwsError[T error](err error) bool {
	var awsErr T
	return errors.As(err, &awsErr)
}

// classify maps an SDK error to an *uploaderr.Error. Unrecognized failures
// are StoreUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return uploaderr.Wrap(kindOf(err), op, err, "")
}

func kindOf(err error) uploaderr.Kind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return uploaderr.StoreUnavailable
	}
	if isAwsError[*types.NoSuchUpload](err) {
		return uploaderr.SessionNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := codeKinds[apiErr.ErrorCode()]; ok {
			return kind
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return uploaderr.Unauthorized
		case status == http.StatusNotFound:
			return uploaderr.SessionNotFound
		case status == http.StatusTooManyRequests:
			return uploaderr.Throttled
		}
	}

	return uploaderr.StoreUnavailable
}
