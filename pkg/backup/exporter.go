// Package backup exports an organization's data to object storage before
// permanent deprovisioning. Exports are best-effort: deprovisioning proceeds
// even when the export fails, so nothing here may be load-bearing.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/platinummonkey/classhub/pkg/orgs"
)

// PutObjectAPI is the slice of the S3 client the exporter needs
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds S3 connection settings
type Config struct {
	Region       string
	Bucket       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// NewS3Client creates an S3 client from config. Static credentials are used
// when provided (MinIO, explicit keys); otherwise the default chain applies.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// Archive is the exported snapshot of an organization
type Archive struct {
	ExportedAt  time.Time          `json:"exported_at"`
	Org         *orgs.Organization `json:"organization"`
	Invitations []*orgs.Invitation `json:"pending_invitations,omitempty"`
	Usage       *orgs.UsageReport  `json:"usage,omitempty"`
}

// Exporter writes organization archives to S3
type Exporter struct {
	client PutObjectAPI
	bucket string
	svc    orgs.Service
}

// NewExporter creates an organization exporter
func NewExporter(client PutObjectAPI, bucket string, svc orgs.Service) *Exporter {
	return &Exporter{
		client: client,
		bucket: bucket,
		svc:    svc,
	}
}

// ExportOrganization gathers the organization's state and uploads it as a
// single JSON archive. Returns the object key of the archive.
func (e *Exporter) ExportOrganization(ctx context.Context, orgID int64) (string, error) {
	org, err := e.svc.GetOrganization(orgID)
	if err != nil {
		return "", fmt.Errorf("failed to load organization: %w", err)
	}

	archive := Archive{
		ExportedAt: time.Now().UTC(),
		Org:        org,
	}

	// Pending invitations and usage history are included when available;
	// a partial archive still beats no archive
	if invitations, err := e.svc.ListPendingInvitations(orgID); err == nil {
		archive.Invitations = invitations
	}
	if report, err := e.svc.Report(ctx, orgID, org.CreatedAt, time.Now()); err == nil {
		archive.Usage = report
	}

	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive: %w", err)
	}

	hash := sha256.Sum256(data)
	key := fmt.Sprintf("exports/org-%d/%s.json", orgID, archive.ExportedAt.Format("20060102T150405Z"))

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}
	return key, nil
}
