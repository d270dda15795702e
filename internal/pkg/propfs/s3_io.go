package propfs

import (
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// s3Reader reads an object as a sequence of ranged GETs of at most chunkSize bytes.
type s3Reader struct {
	client    s3iface.S3API
	bucket    string
	key       string
	offset    int64
	chunkSize int64
	chunk     io.ReadCloser
	totalSize int64
}

func (s *s3Reader) loadNextChunk() error {
	size := min64(s.chunkSize, s.totalSize-s.offset)
	params := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", s.offset, s.offset+size-1)),
	}
	output, err := s.client.GetObject(params)
	if err != nil {
		return err
	}
	s.offset += size
	s.chunk = output.Body
	return nil
}

func (s *s3Reader) Read(b []byte) (n int, err error) {
	for {
		if s.chunk == nil {
			if s.offset >= s.totalSize {
				return 0, io.EOF
			}
			if err := s.loadNextChunk(); err != nil {
				return 0, err
			}
		}

		n, err = s.chunk.Read(b)
		if err == io.EOF {
			s.chunk.Close()
			s.chunk = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *s3Reader) Close() error {
	if s.chunk == nil {
		return nil
	}
	err := s.chunk.Close()
	s.chunk = nil
	return err
}
