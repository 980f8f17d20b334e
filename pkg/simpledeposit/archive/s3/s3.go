package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
)

// Key layout per deposit:
//
//	deposits/<deposit_id>/manifest.json   object metadata + file listing
//	deposits/<deposit_id>/files/<name>    payload files
//	deposits/<deposit_id>/committed       marker written last
//	objects/<business_object_id>/<deposit_id>  index entry for ListDeposits
//
// The commit marker is what PollStatus reads: a manifest without a marker is
// a deposit still settling (or one that died mid-write and will never
// settle), which is exactly the eventually-consistent surface the reconciler
// is built for.

// Config options for the S3 archive backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// CreateBucketIfNotExist creates the bucket on startup (MinIO/dev)
	CreateBucketIfNotExist bool
}

// Backend is an S3-compatible implementation of the simpledeposit.Archive interface
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

type manifest struct {
	DepositID string                       `json:"deposit_id"`
	Object    simpledeposit.BusinessObject `json:"object"`
	Files     []manifestFile               `json:"files"`
	CreatedAt time.Time                    `json:"created_at"`
}

type manifestFile struct {
	Name         string `json:"name"`
	RelativePath string `json:"relative_path,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Size         int64  `json:"size"`
}

// New creates a new S3-compatible archive backend
func New(cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}

	if cfg.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if !errors.As(err, &notFound) && !isNotFound(err) {
		return err
	}

	_, err = b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return err
	}
	return nil
}

// isNotFound classifies smithy API errors that mean "no such key/bucket".
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return true
		}
	}
	return false
}

func depositPrefix(depositID string) string { return "deposits/" + depositID + "/" }

// Submit stores the object's files, then a manifest, then the commit marker.
// The marker goes last so a deposit is never observable as durable with
// partial content behind it.
func (b *Backend) Submit(ctx context.Context, obj *simpledeposit.BusinessObject, parentID string) (string, error) {
	depositID := uuid.NewString()
	prefix := depositPrefix(depositID)

	m := manifest{
		DepositID: depositID,
		Object:    *obj,
		CreatedAt: time.Now().UTC(),
	}
	// Payload bytes travel as their own keys, not inside the manifest.
	m.Object.Files = nil

	for _, f := range obj.Files {
		m.Files = append(m.Files, manifestFile{
			Name:         f.Name,
			RelativePath: f.RelativePath,
			MimeType:     f.MimeType,
			Size:         int64(len(f.Content)),
		})

		input := &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(prefix + "files/" + fileKey(f)),
			Body:   bytes.NewReader(f.Content),
		}
		if f.MimeType != "" {
			input.ContentType = aws.String(f.MimeType)
		}
		if _, err := b.uploader.Upload(ctx, input); err != nil {
			return "", fmt.Errorf("uploading %s: %w", f.Name, err)
		}
	}

	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(prefix + "manifest.json"),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}

	// Index entry so ListDeposits needs no manifest scan.
	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String("objects/" + obj.ID + "/" + depositID),
		Body:   bytes.NewReader(nil),
	}); err != nil {
		return "", fmt.Errorf("indexing deposit: %w", err)
	}

	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(prefix + "committed"),
		Body:   bytes.NewReader(nil),
	}); err != nil {
		return "", fmt.Errorf("writing commit marker: %w", err)
	}

	return depositID, nil
}

// PollStatus reports deposited once the commit marker exists, failed when
// the deposit prefix itself is gone, pending otherwise.
func (b *Backend) PollStatus(ctx context.Context, depositID string) (simpledeposit.DepositStatus, error) {
	prefix := depositPrefix(depositID)

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(prefix + "committed"),
	})
	if err == nil {
		return simpledeposit.DepositStatusDeposited, nil
	}
	if !isNotFound(err) {
		return "", fmt.Errorf("%w: %v", simpledeposit.ErrArchiveUnavailable, err)
	}

	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(prefix + "manifest.json"),
	})
	if err == nil {
		return simpledeposit.DepositStatusPending, nil
	}
	if isNotFound(err) {
		return simpledeposit.DepositStatusFailed, nil
	}
	return "", fmt.Errorf("%w: %v", simpledeposit.ErrArchiveUnavailable, err)
}

// Retrieve reads the manifest and payload files back into a business object
func (b *Backend) Retrieve(ctx context.Context, depositID string) (*simpledeposit.BusinessObject, error) {
	prefix := depositPrefix(depositID)

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(prefix + "manifest.json"),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, simpledeposit.ErrDepositNotFound
		}
		return nil, err
	}
	defer out.Body.Close()

	var m manifest
	if err := json.NewDecoder(out.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	obj := m.Object
	for _, mf := range m.Files {
		f := simpledeposit.File{Name: mf.Name, RelativePath: mf.RelativePath, MimeType: mf.MimeType}
		fo, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(prefix + "files/" + fileKey(f)),
		})
		if err != nil {
			return nil, fmt.Errorf("retrieving %s: %w", mf.Name, err)
		}
		content, err := io.ReadAll(fo.Body)
		fo.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", mf.Name, err)
		}
		f.Content = content
		obj.Files = append(obj.Files, f)
	}

	return &obj, nil
}

// ListDeposits scans the per-object index prefix, oldest first
func (b *Backend) ListDeposits(ctx context.Context, businessObjectID string) ([]string, error) {
	prefix := "objects/" + businessObjectID + "/"

	var ids []string
	type entry struct {
		id       string
		modified time.Time
	}
	var entries []entry

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", simpledeposit.ErrArchiveUnavailable, err)
		}
		for _, obj := range page.Contents {
			e := entry{id: strings.TrimPrefix(aws.ToString(obj.Key), prefix)}
			if obj.LastModified != nil {
				e.modified = *obj.LastModified
			}
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].modified.Before(entries[j].modified) })
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids, nil
}

// fileKey flattens a payload file's relative path into a single key segment.
func fileKey(f simpledeposit.File) string {
	if f.RelativePath == "" {
		return f.Name
	}
	return strings.ReplaceAll(f.RelativePath, "/", "__") + "__" + f.Name
}
