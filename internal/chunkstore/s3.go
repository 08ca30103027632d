package chunkstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const s3ObjectPrefix = "objects/"

// S3Config configures the S3-compatible chunk store backend.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Store keeps chunks as individual objects under an objects/<id>/ prefix
// in an S3-compatible bucket.
type S3Store struct {
	cl     *minio.Client
	bucket string
}

// NewS3Store creates an S3 chunk store client.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &S3Store{cl: cl, bucket: cfg.Bucket}, nil
}

// PutChunk uploads one chunk object.
func (s *S3Store) PutChunk(ctx context.Context, objectID string, index int, data []byte) error {
	if strings.TrimSpace(objectID) == "" {
		return fmt.Errorf("object id is required")
	}
	if index < 0 {
		return fmt.Errorf("chunk index must be >= 0")
	}
	_, err := s.cl.PutObject(ctx, s.bucket, s3ChunkKey(objectID, index),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
	return err
}

// Finalize uploads the metadata object.
func (s *S3Store) Finalize(ctx context.Context, info ObjectInfo) error {
	if strings.TrimSpace(info.ID) == "" {
		return fmt.Errorf("object id is required")
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = s.cl.PutObject(ctx, s.bucket, s3MetaKey(info.ID),
		bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
	return err
}

// Stat downloads and decodes the metadata object.
func (s *S3Store) Stat(ctx context.Context, objectID string) (*ObjectInfo, error) {
	obj, err := s.cl.GetObject(ctx, s.bucket, s3MetaKey(objectID), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		if isS3NoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	info := ObjectInfo{}
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("parse object metadata: %w", err)
	}
	return &info, nil
}

// ReadChunk downloads one chunk object.
func (s *S3Store) ReadChunk(ctx context.Context, objectID string, index int) ([]byte, error) {
	obj, err := s.cl.GetObject(ctx, s.bucket, s3ChunkKey(objectID, index), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isS3NoSuchKey(err) {
			return nil, ErrChunkNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete removes every object under the id's prefix.
func (s *S3Store) Delete(ctx context.Context, objectID string) error {
	if strings.TrimSpace(objectID) == "" {
		return fmt.Errorf("object id is required")
	}
	prefix := s3ObjectPrefix + objectID + "/"
	for obj := range s.cl.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return obj.Err
		}
		if err := s.cl.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// ListObjectIDs lists distinct object ids under the objects/ prefix.
func (s *S3Store) ListObjectIDs(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	ids := []string{}
	for obj := range s.cl.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s3ObjectPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		rest := strings.TrimPrefix(obj.Key, s3ObjectPrefix)
		id, _, ok := strings.Cut(rest, "/")
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func s3ChunkKey(objectID string, index int) string {
	return fmt.Sprintf("%s%s/%06d.chunk", s3ObjectPrefix, objectID, index)
}

func s3MetaKey(objectID string) string {
	return s3ObjectPrefix + objectID + "/meta.json"
}

func isS3NoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}

var _ Store = (*S3Store)(nil)
