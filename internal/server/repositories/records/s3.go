package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectAPI is the subset of *s3.Client used by S3Repository.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures the object storage connection. Endpoint may point at
// MinIO or any other S3-compatible server.
type S3Options struct {
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	Bucket    string
}

// NewS3Client builds an S3 client with static credentials.
func NewS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(opts *s3.Options) {
		if o.Endpoint != "" {
			opts.BaseEndpoint = aws.String(o.Endpoint)
			opts.UsePathStyle = true
		}
	})
	return client, nil
}

// S3Repository keeps all records of a user in a single JSON document at
// records/<user_id>.json. Put is a read-modify-write of that document and is
// not safe against concurrent writers for the same user.
type S3Repository struct {
	client ObjectAPI
	bucket string
	now    func() time.Time
}

func NewS3Repository(client ObjectAPI, bucket string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket, now: time.Now}
}

type s3Record struct {
	DataType   string    `json:"data_type"`
	Ciphertext []byte    `json:"data_content"`
	Salt       []byte    `json:"salt,omitempty"`
	Encrypted  bool      `json:"encrypted"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type s3Document struct {
	UserID  string     `json:"user_id"`
	Records []s3Record `json:"records"`
}

func objectKey(userID string) string {
	return "records/" + userID + ".json"
}

func (r *S3Repository) load(ctx context.Context, userID string) (*s3Document, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey(userID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("s3 get error: %w: %w", common.ErrStoreUnavailable, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read error: %w: %w", common.ErrStoreUnavailable, err)
	}

	var doc s3Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("s3 decode error: %w", err)
	}
	return &doc, nil
}

func (r *S3Repository) Get(ctx context.Context, userID string) (*models.EncryptedRecord, error) {
	doc, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(doc.Records) == 0 {
		return nil, common.ErrorNotFound
	}

	latest := doc.Records[0]
	for _, rec := range doc.Records[1:] {
		if rec.UpdatedAt.After(latest.UpdatedAt) {
			latest = rec
		}
	}

	return &models.EncryptedRecord{
		UserID:     userID,
		DataType:   latest.DataType,
		Ciphertext: latest.Ciphertext,
		Salt:       latest.Salt,
		Encrypted:  latest.Encrypted,
		UpdatedAt:  latest.UpdatedAt,
	}, nil
}

func (r *S3Repository) Put(ctx context.Context, rec *models.EncryptedRecord) error {
	doc, err := r.load(ctx, rec.UserID)
	if errors.Is(err, common.ErrorNotFound) {
		doc = &s3Document{UserID: rec.UserID}
	} else if err != nil {
		return err
	}

	rec.UpdatedAt = r.now().UTC()
	entry := s3Record{
		DataType:   rec.DataType,
		Ciphertext: rec.Ciphertext,
		Salt:       rec.Salt,
		Encrypted:  rec.Encrypted,
		UpdatedAt:  rec.UpdatedAt,
	}

	replaced := false
	for i := range doc.Records {
		if doc.Records[i].DataType == rec.DataType {
			doc.Records[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Records = append(doc.Records, entry)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("s3 encode error: %w", err)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(objectKey(rec.UserID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put error: %w: %w", common.ErrStoreUnavailable, err)
	}
	return nil
}
