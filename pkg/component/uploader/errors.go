package uploader

import (
	"context"
	"errors"
	"net"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/lin-stream/streamspy/pkg/core/model"
)

// UploadError carries the retry classification of a failed put. Object
// store implementations may return it directly; anything else goes
// through Classify.
type UploadError struct {
	Kind model.ErrorKind
	Err  error
}

func (e *UploadError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func NewTransientError(err error) *UploadError {
	return &UploadError{Kind: model.ErrKindTransient, Err: err}
}

func NewPermanentError(err error) *UploadError {
	return &UploadError{Kind: model.ErrKindPermanent, Err: err}
}

// permanent S3 error codes, everything else is assumed retryable
var permanentCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
	"MissingSecurityHeader": true,
	"InvalidArgument":       true,
}

// Classify maps an error from the object store to the retry taxonomy.
// Timeouts, connection resets and 5xx responses are transient; auth and
// argument problems are permanent.
func Classify(err error) model.ErrorKind {
	if err == nil {
		return model.ErrKindNone
	}

	var uerr *UploadError
	if errors.As(err, &uerr) {
		return uerr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.ErrKindTransient
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return model.ErrKindTransient
	}

	if rerr, ok := err.(awserr.RequestFailure); ok {
		code := rerr.StatusCode()
		if code == 401 || code == 403 || (code >= 400 && code < 500 && code != 408 && code != 429) {
			return model.ErrKindPermanent
		}
		return model.ErrKindTransient
	}
	if aerr, ok := err.(awserr.Error); ok {
		if permanentCodes[aerr.Code()] {
			return model.ErrKindPermanent
		}
		return model.ErrKindTransient
	}

	return model.ErrKindTransient
}
