package media

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 limits DeleteObjects to 1000 keys per request.
const s3DeleteBatch = 1000

// S3API is the part of *s3.Client used by S3Disk.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Options configures the object storage client.
type S3Options struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string
}

// NewS3Client builds an S3 client. A non-empty Endpoint selects an
// S3-compatible server (MinIO) with path-style addressing.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	}
	cfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Disk stores one logical bucket as a key prefix of a physical bucket.
type S3Disk struct {
	client S3API
	bucket string
	prefix string
}

var _ Disk = (*S3Disk)(nil)

// NewS3Disk returns a disk for keys <prefix>/<dir>/<name> in bucket.
func NewS3Disk(client S3API, bucket, prefix string) *S3Disk {
	return &S3Disk{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3Disks returns one disk per logical bucket in the physical bucket.
func NewS3Disks(client S3API, bucket string, buckets []string) map[string]Disk {
	disks := make(map[string]Disk, len(buckets))
	for _, b := range buckets {
		disks[b] = NewS3Disk(client, bucket, b)
	}
	return disks
}

func (d *S3Disk) dirKey(dir string) string {
	if d.prefix == "" {
		return dir + "/"
	}
	return d.prefix + "/" + dir + "/"
}

// List implements Disk. S3 returns keys in ascending order.
func (d *S3Disk) List(ctx context.Context, dir, prefix string, limit int) ([]File, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}
	base := d.dirKey(dir)

	var files []File
	var token *string
	for {
		in := &s3.ListObjectsV2Input{
			Bucket:            aws.String(d.bucket),
			Prefix:            aws.String(base + prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		}
		if limit > 0 {
			in.MaxKeys = aws.Int32(int32(min(limit-len(files), s3DeleteBatch)))
		}
		out, err := d.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), base)
			if name == "" {
				continue
			}
			files = append(files, File{Name: name, Size: aws.ToInt64(obj.Size)})
			if limit > 0 && len(files) == limit {
				return files, nil
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Delete implements Disk. S3 reports success for keys that do not exist.
func (d *S3Disk) Delete(ctx context.Context, dir string, names []string) error {
	dir, err := cleanDir(dir)
	if err != nil {
		return err
	}
	base := d.dirKey(dir)

	for start := 0; start < len(names); start += s3DeleteBatch {
		end := min(start+s3DeleteBatch, len(names))
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, name := range names[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(base + name)})
		}
		out, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("delete %s: %s: %s", aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message))
		}
	}
	return nil
}
