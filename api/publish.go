package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// PublishS3 uploads an export for static hosting and returns its location.
// The AWS library uses environment variables to configure itself.
func PublishS3(ctx context.Context, bucket, key, contentType string, body io.Reader) (string, error) {
	if bucket == "" || key == "" {
		return "", errors.New("s3 bucket and key are required")
	}
	sess, err := session.NewSession()
	if err != nil {
		return "", fmt.Errorf("aws session: %w", err)
	}
	uploader := s3manager.NewUploader(sess)
	out, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == request.CanceledErrorCode {
			return "", fmt.Errorf("s3 upload canceled: %w", err)
		}
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	slog.Info("Published export to S3", "bucket", bucket, "key", key, "location", out.Location)
	return out.Location, nil
}
