package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3-backed Storage implementation.
type S3Config struct {
	Bucket string
	Prefix string
	// Region is the AWS region; empty uses the default credential chain's
	// resolved region.
	Region string
	// Endpoint overrides the S3 endpoint for S3-compatible providers.
	Endpoint string
	// UsePathStyle is required by most non-AWS S3-compatible providers.
	UsePathStyle bool
}

func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("blob: S3 bucket is required")
	}
	return nil
}

// S3Storage implements Storage over an S3 bucket, objects keyed by
// "<prefix>/<namespace root>/<rel path>". Directories have no first-class
// representation in S3; CreateDir writes a zero-byte marker object
// "<dir>/.keep" so an otherwise-empty directory still reports IsDirectory.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Storage loads AWS config via the default credential chain
// (env vars, shared config, IAM role) and constructs an S3Storage.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load AWS config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return &S3Storage{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Storage) objectKey(ns Namespace, relPath string) string {
	return path.Join(s.prefix, ns.Root(), relPath)
}

func (s *S3Storage) dirMarkerKey(ns Namespace, relPath string) string {
	return s.objectKey(ns, relPath) + "/.keep"
}

func isNotFound(err error) bool {
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	var nb *types.NotFound
	return errors.As(err, &nb)
}

func (s *S3Storage) GetRaw(ctx context.Context, ns Namespace, relPath string) ([]byte, bool, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return nil, false, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ns, clean)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("blob: s3 get %s: %w", relPath, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("blob: s3 read body %s: %w", relPath, err)
	}
	return data, true, nil
}

func (s *S3Storage) PutRaw(ctx context.Context, ns Namespace, relPath string, data []byte) error {
	clean, err := CleanPath(relPath)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ns, clean)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("blob: s3 put %s: %w", relPath, err)
	}
	return nil
}

func (s *S3Storage) GetMetadata(ctx context.Context, ns Namespace, relPath string) (Metadata, bool, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return Metadata{}, false, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ns, clean)),
	})
	if err != nil {
		if isNotFound(err) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, fmt.Errorf("blob: s3 head %s: %w", relPath, err)
	}
	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	var lastModified int64
	if out.LastModified != nil {
		lastModified = out.LastModified.UnixMilli()
	}
	return Metadata{Size: size, LastModifiedAt: lastModified}, true, nil
}

func (s *S3Storage) Delete(ctx context.Context, ns Namespace, relPath string) error {
	clean, err := CleanPath(relPath)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ns, clean)),
	})
	if err != nil {
		return fmt.Errorf("blob: s3 delete %s: %w", relPath, err)
	}
	return nil
}

func (s *S3Storage) CreateDir(ctx context.Context, ns Namespace, relPath string) error {
	clean, err := CleanPath(relPath)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.dirMarkerKey(ns, clean)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("blob: s3 create dir %s: %w", relPath, err)
	}
	return nil
}

func (s *S3Storage) ListDir(ctx context.Context, ns Namespace, relPath string) ([]string, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return nil, err
	}
	prefix := s.objectKey(ns, clean)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []string
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("blob: s3 list %s: %w", relPath, err)
		}
		for _, obj := range resp.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == ".keep" || name == "" {
				continue
			}
			out = append(out, path.Join(clean, name))
		}
		for _, cp := range resp.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name == "" {
				continue
			}
			out = append(out, path.Join(clean, name))
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func (s *S3Storage) DeleteDir(ctx context.Context, ns Namespace, relPath string) error {
	clean, err := CleanPath(relPath)
	if err != nil {
		return err
	}
	prefix := s.objectKey(ns, clean)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("blob: s3 list for delete %s: %w", relPath, err)
		}
		var ids []types.ObjectIdentifier
		for _, obj := range resp.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		if len(ids) > 0 {
			if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: ids},
			}); err != nil {
				return fmt.Errorf("blob: s3 delete dir %s: %w", relPath, err)
			}
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		token = resp.NextContinuationToken
	}
	_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimSuffix(prefix, "/") + "/.keep"),
	})
	return nil
}

func (s *S3Storage) Exists(ctx context.Context, ns Namespace, relPath string) (ExistsResult, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return DoesNotExist, err
	}
	key := s.objectKey(ns, clean)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(key),
	}); err == nil {
		return IsFile, nil
	} else if !isNotFound(err) {
		return DoesNotExist, fmt.Errorf("blob: s3 head %s: %w", relPath, err)
	}
	resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket), Prefix: aws.String(key + "/"), MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return DoesNotExist, fmt.Errorf("blob: s3 list %s: %w", relPath, err)
	}
	if len(resp.Contents) > 0 {
		return IsDirectory, nil
	}
	return DoesNotExist, nil
}

func (s *S3Storage) Copy(ctx context.Context, ns Namespace, from, to string) error {
	cleanFrom, err := CleanPath(from)
	if err != nil {
		return err
	}
	cleanTo, err := CleanPath(to)
	if err != nil {
		return err
	}
	source := s.bucket + "/" + s.objectKey(ns, cleanFrom)
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.objectKey(ns, cleanTo)),
		CopySource: aws.String(source),
	})
	if err != nil {
		return fmt.Errorf("blob: s3 copy %s -> %s: %w", from, to, err)
	}
	return nil
}

func (s *S3Storage) CopyDirContents(ctx context.Context, fromNs, toNs Namespace, from, to string) error {
	entries, err := s.ListDir(ctx, fromNs, from)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := strings.TrimPrefix(strings.TrimPrefix(e, from), "/")
		data, ok, err := s.GetRaw(ctx, fromNs, e)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.PutRaw(ctx, toNs, path.Join(to, rel), data); err != nil {
			return err
		}
	}
	return nil
}

var _ Storage = (*S3Storage)(nil)
