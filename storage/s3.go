package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/johnwmail/pastebin/models"
)

// maxCASAttempts bounds the optimistic increment loop.
const maxCASAttempts = 16

// ErrContention is returned when an increment keeps losing the ETag race.
var ErrContention = errors.New("too much contention on paste record")

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Options configures the S3 backend.
type S3Options struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3Store keeps one JSON object per paste. Increments are compare-and-swap
// writes conditioned on the object's ETag.
type S3Store struct {
	bucket string
	prefix string
	client s3API
	logger *slog.Logger
}

// NewS3Store creates a new S3Store instance
func NewS3Store(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name must not be empty")
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return newS3StoreFromClient(client, opts.Bucket, opts.Prefix, logger), nil
}

func newS3StoreFromClient(client s3API, bucket, prefix string, logger *slog.Logger) *S3Store {
	return &S3Store{
		bucket: bucket,
		prefix: normalizeS3Prefix(prefix),
		client: client,
		logger: loggerOrDefault(logger),
	}
}

func (s *S3Store) objectKey(id string) string {
	return applyS3Prefix(s.prefix, Key(id)+".json")
}

func (s *S3Store) Put(ctx context.Context, id string, paste *models.Paste) error {
	data, err := encodePaste(paste)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.putInput(id, data))
	if err != nil {
		s.logger.Debug("s3 put failed", "bucket", s.bucket, "key", s.objectKey(id), "error", err)
	}
	return err
}

func (s *S3Store) Get(ctx context.Context, id string) (*models.Paste, error) {
	paste, _, err := s.read(ctx, id)
	return paste, err
}

// IncrementViews retries read-modify-write until the conditional put wins.
func (s *S3Store) IncrementViews(ctx context.Context, id string) (*models.Paste, error) {
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		paste, etag, err := s.read(ctx, id)
		if err != nil || paste == nil {
			return nil, err
		}
		paste.Views++
		data, err := encodePaste(paste)
		if err != nil {
			return nil, err
		}

		in := s.putInput(id, data)
		in.IfMatch = aws.String(etag)
		_, err = s.client.PutObject(ctx, in)
		switch {
		case err == nil:
			return paste, nil
		case isS3NotFound(err):
			return nil, nil
		case isS3Conflict(err):
			s.logger.Debug("s3 increment lost etag race", "id", id, "attempt", attempt)
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrContention
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) putInput(id string, data []byte) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	}
}

// read returns the record and its ETag, or nil when absent or undecodable.
func (s *S3Store) read(ctx context.Context, id string) (*models.Paste, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, "", nil
		}
		return nil, "", err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}
	return decodeOrAbsent(s.logger, "s3", id, data), aws.ToString(out.ETag), nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return httpStatus(err) == http.StatusNotFound
}

// isS3Conflict matches a failed If-Match (412) or a concurrent conditional
// write (409).
func isS3Conflict(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	status := httpStatus(err)
	return status == http.StatusPreconditionFailed || status == http.StatusConflict
}

func httpStatus(err error) int {
	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		return withStatus.HTTPStatusCode()
	}
	return 0
}
