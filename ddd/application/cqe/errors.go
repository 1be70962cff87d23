package cqe

import "errors"

var (
	errFormatRequired      = errors.New("format is required")
	errBadSourceURL        = errors.New("source must be an http(s) url")
	errIncompatibleFormats = errors.New("input cannot be converted to the requested format")
)
