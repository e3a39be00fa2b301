package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/samber/lo"

	"github.com/cesargomez89/spotdown/internal/constants"
)

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string
}

// S3Store talks to any S3 compatible endpoint, Cloudflare R2 included.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucket     string
	publicBase string
}

func NewS3Store(cfg S3Config) *S3Store {
	region := cfg.Region
	if region == "" {
		region = constants.DefaultS3Region
	}

	client := s3.New(s3.Options{
		Region:       region,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

func (s *S3Store) Put(ctx context.Context, key, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix string, limit int) (Listing, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(limit)),
	})
	if err != nil {
		return Listing{}, err
	}

	keys := lo.FilterMap(out.Contents, func(obj types.Object, _ int) (string, bool) {
		return aws.ToString(obj.Key), obj.Key != nil
	})
	return Listing{Keys: keys, Truncated: aws.ToBool(out.IsTruncated)}, nil
}

// DeleteBatch issues DeleteObjects in chunks of at most 1000 keys.
func (s *S3Store) DeleteBatch(ctx context.Context, keys []string) error {
	for _, chunk := range lo.Chunk(keys, constants.MaxBatchDelete) {
		objects := lo.Map(chunk, func(k string, _ int) types.ObjectIdentifier {
			return types.ObjectIdentifier{Key: aws.String(k)}
		})

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("%d objects not deleted, first %s: %s", len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

func (s *S3Store) URL(key string) string {
	return s.publicBase + "/" + key
}
