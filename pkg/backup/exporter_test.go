package backup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/classhub/pkg/orgs"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &s3.PutObjectOutput{}, nil
}

// archiveSource stubs the registry surface the exporter reads from
type archiveSource struct {
	orgs.Service
	org         *orgs.Organization
	invitations []*orgs.Invitation
	report      *orgs.UsageReport
	reportErr   error
}

func (a *archiveSource) GetOrganization(id int64) (*orgs.Organization, error) {
	if a.org == nil || a.org.ID != id {
		return nil, &orgs.NotFoundError{Resource: "organization"}
	}
	return a.org, nil
}

func (a *archiveSource) ListPendingInvitations(int64) ([]*orgs.Invitation, error) {
	return a.invitations, nil
}

func (a *archiveSource) Report(context.Context, int64, time.Time, time.Time) (*orgs.UsageReport, error) {
	return a.report, a.reportErr
}

func exportedOrg() *orgs.Organization {
	return &orgs.Organization{
		ID:     1,
		Name:   "Acme School",
		Slug:   "acme-school",
		Tier:   orgs.TierPro,
		Status: orgs.OrgStatusActive,
	}
}

func TestExportOrganization(t *testing.T) {
	client := &fakeS3{}
	svc := &archiveSource{
		org:         exportedOrg(),
		invitations: []*orgs.Invitation{{ID: 10, OrgID: 1, Email: "teacher@example.com"}},
		report:      &orgs.UsageReport{OrgID: 1},
	}
	exporter := NewExporter(client, "classhub-exports", svc)

	key, err := exporter.ExportOrganization(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, key, "exports/org-1/")
	assert.Contains(t, key, ".json")

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, "classhub-exports", *input.Bucket)
	assert.Equal(t, key, *input.Key)
	assert.NotEmpty(t, input.Metadata["checksum-sha256"])

	body, err := io.ReadAll(input.Body)
	require.NoError(t, err)
	var archive Archive
	require.NoError(t, json.Unmarshal(body, &archive))
	assert.Equal(t, "acme-school", archive.Org.Slug)
	require.Len(t, archive.Invitations, 1)
	assert.Equal(t, "teacher@example.com", archive.Invitations[0].Email)
	require.NotNil(t, archive.Usage)
}

func TestExportOrganization_PartialArchive(t *testing.T) {
	client := &fakeS3{}
	svc := &archiveSource{
		org:       exportedOrg(),
		reportErr: errors.New("usage log unavailable"),
	}
	exporter := NewExporter(client, "classhub-exports", svc)

	// Usage history failures degrade the archive, never the export
	key, err := exporter.ExportOrganization(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	body, err := io.ReadAll(client.inputs[0].Body)
	require.NoError(t, err)
	var archive Archive
	require.NoError(t, json.Unmarshal(body, &archive))
	assert.Nil(t, archive.Usage)
}

func TestExportOrganization_MissingOrg(t *testing.T) {
	exporter := NewExporter(&fakeS3{}, "classhub-exports", &archiveSource{})

	_, err := exporter.ExportOrganization(context.Background(), 99)
	assert.Error(t, err)
}

func TestExportOrganization_UploadFailure(t *testing.T) {
	client := &fakeS3{err: errors.New("bucket unavailable")}
	exporter := NewExporter(client, "classhub-exports", &archiveSource{org: exportedOrg()})

	_, err := exporter.ExportOrganization(context.Background(), 1)
	assert.Error(t, err)
}
