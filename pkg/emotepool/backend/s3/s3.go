// Package s3 provides an emote backend that stores images in an
// S3-compatible bucket. Each slot is a key prefix holding up to the
// configured number of images per kind; slot identities live as small JSON
// marker objects under the slots/ prefix.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

const slotMarkerPrefix = "slots/"

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
}

// Backend is an S3-compatible implementation of the emotepool.Backend interface
type Backend struct {
	client *s3.Client
	bucket string
}

// New creates a new S3-compatible emote backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		// Default credential chain
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return &Backend{
		client: s3.NewFromConfig(awsCfg, s3Options...),
		bucket: config.Bucket,
	}, nil
}

var _ emotepool.Backend = (*Backend)(nil)

// RegisterSlot writes a slot marker object. Operators run this when
// provisioning a new container prefix.
func (b *Backend) RegisterSlot(ctx context.Context, info emotepool.SlotInfo) error {
	body, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(fmt.Sprintf("%s%d.json", slotMarkerPrefix, info.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (b *Backend) ListSlots(ctx context.Context) ([]emotepool.SlotInfo, error) {
	var slots []emotepool.SlotInfo

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(slotMarkerPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list slot markers: %w", err)
		}
		for _, obj := range page.Contents {
			if !strings.HasSuffix(aws.ToString(obj.Key), ".json") {
				continue
			}
			info, err := b.readSlotMarker(ctx, aws.ToString(obj.Key))
			if err != nil {
				return nil, err
			}
			slots = append(slots, info)
		}
	}
	return slots, nil
}

func (b *Backend) readSlotMarker(ctx context.Context, key string) (emotepool.SlotInfo, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return emotepool.SlotInfo{}, fmt.Errorf("read slot marker %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return emotepool.SlotInfo{}, err
	}
	var info emotepool.SlotInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return emotepool.SlotInfo{}, fmt.Errorf("decode slot marker %s: %w", key, err)
	}
	return info, nil
}

func imageKey(slot int64, id uuid.UUID) string {
	return fmt.Sprintf("%d/%s", slot, id)
}

func (b *Backend) Create(ctx context.Context, slot int64, name string, kind emotepool.Kind, image []byte) (uuid.UUID, error) {
	id := uuid.New()

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(imageKey(slot, id)),
		Body:   bytes.NewReader(image),
		Metadata: map[string]string{
			"name": name,
			"kind": string(kind),
		},
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (b *Backend) Delete(ctx context.Context, slot int64, id uuid.UUID) error {
	key := imageKey(slot, id)

	// S3 deletes are idempotent, so probe first: callers need to know
	// when the image was already gone.
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return emotepool.ErrBackendNotFound
		}
		return err
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (b *Backend) Rename(ctx context.Context, slot int64, id uuid.UUID, newName string) error {
	key := imageKey(slot, id)

	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return emotepool.ErrBackendNotFound
		}
		return err
	}

	metadata := make(map[string]string, len(head.Metadata))
	for k, v := range head.Metadata {
		metadata[k] = v
	}
	metadata["name"] = newName

	// Copy onto itself with replaced metadata; S3 has no metadata update.
	_, err = b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(b.bucket),
		CopySource:        aws.String(b.bucket + "/" + key),
		Key:               aws.String(key),
		Metadata:          metadata,
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	return err
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
