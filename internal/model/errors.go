package model

import "errors"

var (
	// ErrMalformedResponse means a remote listing lacked its expected keys.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrPermissionDenied means the API user may not read a process's forms.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrProcessArchived means the remote process is archived.
	ErrProcessArchived = errors.New("process archived")
	// ErrRateLimitExceeded means the daily call budget is spent.
	ErrRateLimitExceeded = errors.New("api daily limit reached")
	// ErrFormUnavailable means a form payload carried an error message (usually deleted).
	ErrFormUnavailable = errors.New("form unavailable")
	// ErrAttachmentDownloadFailed means an attachment download returned non-2xx.
	ErrAttachmentDownloadFailed = errors.New("attachment download failed")
	// ErrStoreConnection means the metadata store could not be reached.
	ErrStoreConnection = errors.New("store connection failure")
	// ErrNotFound means a requested row does not exist.
	ErrNotFound = errors.New("not found")
)
