package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrNotFound is returned by Get when the ledger object does not exist yet.
	ErrNotFound = errors.New("ledger object not found")

	// ErrConflict is returned by Put when the object changed since it was read.
	ErrConflict = errors.New("ledger object modified concurrently")
)

// API is the subset of *s3.Client the store needs.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Object is a fetched ledger and the ETag it was read at.
type Object struct {
	Body []byte
	ETag string
}

// Store reads and writes a single object in an S3-compatible bucket.
type Store struct {
	api         API
	bucket      string
	key         string
	conditional bool
}

// NewStore returns a Store for bucket/key. With conditional set, Put only
// succeeds if the object is still at the version Get returned.
func NewStore(api API, bucket, key string, conditional bool) *Store {
	return &Store{api: api, bucket: bucket, key: key, conditional: conditional}
}

func (s *Store) Get(ctx context.Context) (*Object, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", s.bucket, s.key, err)
	}

	return &Object{Body: body, ETag: aws.ToString(out.ETag)}, nil
}

// Put overwrites the object with body. prev is the object the body was
// derived from, or nil when Get reported ErrNotFound.
func (s *Store) Put(ctx context.Context, body []byte, prev *Object) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("text/csv; charset=utf-8"),
	}
	if s.conditional {
		switch {
		case prev == nil:
			input.IfNoneMatch = aws.String("*")
		case prev.ETag != "":
			input.IfMatch = aws.String(prev.ETag)
		}
	}

	if _, err := s.api.PutObject(ctx, input); err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("put %s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isConflict(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
