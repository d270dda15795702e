package propfs

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

var errNoS3Client = errors.New("s3 filesystem is not initialized")

// defaultChunkSize is the size of each ranged GET issued by S3 readers
const defaultChunkSize = 16 * 1024 * 1024

// S3FileSystem reads inputs addressed as s3://bucket/key.
type S3FileSystem struct {
	client    s3iface.S3API
	chunkSize int64
}

func parseS3URI(uri string) (bucket, key string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if parsed.Scheme != "s3" || parsed.Host == "" {
		return "", "", fmt.Errorf("%q is not an s3:// address", uri)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}

func (s *S3FileSystem) head(bucket, key string) (int64, error) {
	if s.client == nil {
		return 0, errNoS3Client
	}
	params := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	output, err := s.client.HeadObject(params)
	if err != nil {
		return 0, err
	}
	return aws.Int64Value(output.ContentLength), nil
}

// OpenReader returns a reader that streams the object in ranged chunks.
func (s *S3FileSystem) OpenReader(filePath string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	size, err := s.head(bucket, key)
	if err != nil {
		return nil, err
	}

	chunkSize := s.chunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &s3Reader{
		client:    s.client,
		bucket:    bucket,
		key:       key,
		chunkSize: chunkSize,
		totalSize: size,
	}, nil
}

func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	bucket, key, err := parseS3URI(filePath)
	if err != nil {
		return FileInfo{}, err
	}

	size, err := s.head(bucket, key)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name: filePath,
		Size: size,
	}, nil
}

func (s *S3FileSystem) Init() error {
	os.Setenv("AWS_SDK_LOAD_CONFIG", "true")
	sess, err := session.NewSession()
	if err != nil {
		return err
	}
	s.client = s3.New(sess)
	s.chunkSize = defaultChunkSize
	return nil
}
