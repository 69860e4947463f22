package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/openfun/marsha-sub002/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// DefaultPartSize is the read-buffer size for multipart uploads. Memory use is
// bounded to one buffered part per in-flight file.
const DefaultPartSize = 10 * 1024 * 1024

// s3API is the subset of the S3 client the uploader needs. Narrowed so tests
// can substitute a fake.
type s3API interface {
	CreateMultipartUploadWithContext(aws.Context, *s3.CreateMultipartUploadInput, ...request.Option) (*s3.CreateMultipartUploadOutput, error)
	UploadPartWithContext(aws.Context, *s3.UploadPartInput, ...request.Option) (*s3.UploadPartOutput, error)
	CompleteMultipartUploadWithContext(aws.Context, *s3.CompleteMultipartUploadInput, ...request.Option) (*s3.CompleteMultipartUploadOutput, error)
	PutObjectWithContext(aws.Context, *s3.PutObjectInput, ...request.Option) (*s3.PutObjectOutput, error)
}

type S3Service struct {
	client   s3API
	partSize int64
}

// NewAWSSession builds the session shared by the S3 and MediaPackage clients.
func NewAWSSession(cfg *config.Config) *session.Session {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.S3Region),
	}

	if cfg.AWSAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			cfg.AWSAccessKey,
			cfg.AWSSecretKey,
			"",
		)
	}

	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.S3UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	return session.Must(session.NewSession(awsCfg))
}

func NewS3Service(sess *session.Session) *S3Service {
	return &S3Service{
		client:   s3.New(sess),
		partSize: DefaultPartSize,
	}
}

// UploadFile streams localPath to bucket/key as a multipart upload. Parts are
// read and sent sequentially; each part carries an MD5 checksum the storage
// service verifies on receipt, and the completion call replays the collected
// part acknowledgments in order 1..N. A failure mid-stream leaves the
// incomplete multipart upload on the storage side for lifecycle cleanup; it is
// not aborted here.
func (s *S3Service) UploadFile(ctx context.Context, bucket, key, localPath, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	// A multipart upload needs at least one part; an empty deliverable is a
	// transcoding failure upstream, not something to ship.
	if info.Size() == 0 {
		return fmt.Errorf("refusing to upload empty file %s", localPath)
	}

	create, err := s.client.CreateMultipartUploadWithContext(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to create multipart upload for %s: %w", key, err)
	}

	var completed []*s3.CompletedPart
	buf := make([]byte, s.partSize)
	for partNumber := int64(1); ; partNumber++ {
		n, readErr := io.ReadFull(file, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("failed to read %s: %w", localPath, readErr)
		}

		part := buf[:n]
		sum := md5.Sum(part)

		out, err := s.client.UploadPartWithContext(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			UploadId:      create.UploadId,
			PartNumber:    aws.Int64(partNumber),
			Body:          bytes.NewReader(part),
			ContentLength: aws.Int64(int64(n)),
			ContentMD5:    aws.String(base64.StdEncoding.EncodeToString(sum[:])),
		})
		if err != nil {
			return fmt.Errorf("failed to upload part %d of %s: %w", partNumber, key, err)
		}

		completed = append(completed, &s3.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int64(partNumber),
		})

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	_, err = s.client.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: create.UploadId,
		MultipartUpload: &s3.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload for %s: %w", key, err)
	}

	return nil
}

// PutFile uploads localPath as a single whole-object put, with an MD5 checksum
// over the full body.
func (s *S3Service) PutFile(ctx context.Context, bucket, key, localPath, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	sum := md5.Sum(data)
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ContentMD5:  aws.String(base64.StdEncoding.EncodeToString(sum[:])),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}
