package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"chatrelay/internal/persist"
)

const DefaultPrefix = "chatrelay/"

// ObjectAPI is the subset of *s3.Client the store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store keeps one object per key. S3 has no multi-object transaction, so
// Commit uploads the count key last: a reader never sees a count that points
// past records written by the same flush.
type Store struct {
	api    ObjectAPI
	bucket string
	prefix string
	staged persist.Batch
}

// Open builds a client from the default AWS credential chain.
func Open(ctx context.Context, bucket, prefix string) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func New(api ObjectAPI, bucket, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{api: api, bucket: bucket, prefix: prefix}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, persist.ErrNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.staged.Put(key, value)
	return nil
}

// Commit uploads staged records one object at a time and the count key last,
// so a failed commit never advertises records that were not written. It is
// not atomic: once history wraps, a commit that fails midway can leave the
// old count over a mix of shifted and unshifted records.
func (s *Store) Commit(ctx context.Context) error {
	kvs := s.staged.Take()
	var count *persist.KV
	for i := range kvs {
		if kvs[i].Key == persist.CountKey {
			count = &kvs[i]
			continue
		}
		if err := s.put(ctx, kvs[i]); err != nil {
			return err
		}
	}
	if count != nil {
		return s.put(ctx, *count)
	}
	return nil
}

func (s *Store) put(ctx context.Context, kv persist.KV) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + kv.Key),
		Body:   bytes.NewReader(kv.Value),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", kv.Key, err)
	}
	return nil
}

func (s *Store) Discard() { s.staged.Reset() }

func (s *Store) Close() error { return nil }
