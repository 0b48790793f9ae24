package provision

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/classhub/pkg/audit"
	"github.com/platinummonkey/classhub/pkg/orgs"
)

// Deprovision tears an organization down. A soft deprovision suspends the
// organization so it can be reactivated later; a permanent one cancels it
// and marks it deleted. When an exporter is configured, a backup is
// attempted first for permanent runs, but a failed backup never blocks the
// teardown.
func (p *Provisioner) Deprovision(ctx context.Context, orgID int64, permanent bool) error {
	ctx, span := p.tracer.Start(ctx, "Deprovision",
		trace.WithAttributes(
			attribute.Int64("org.id", orgID),
			attribute.Bool("permanent", permanent),
		),
	)
	defer span.End()

	org, err := p.svc.GetOrganization(orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "organization lookup failed")
		return err
	}

	backupKey := ""
	if permanent && p.exporter != nil {
		key, err := p.exporter.ExportOrganization(ctx, orgID)
		if err != nil {
			span.RecordError(err)
			p.logger.WithError(err).WithField("org_id", orgID).Warn("Backup export failed, continuing deprovision")
		} else {
			backupKey = key
		}
	}

	if permanent {
		if org.Status != orgs.OrgStatusCancelled {
			if err := p.svc.SetStatus(orgID, orgs.OrgStatusCancelled); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "status change failed")
				return err
			}
		}
		if err := p.svc.SoftDeleteOrganization(orgID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "deletion marker failed")
			return err
		}
		// Activity state is cache-only; losing the purge is not worth
		// failing an otherwise complete teardown
		if p.activity != nil {
			if err := p.activity.Forget(ctx, orgID); err != nil {
				span.RecordError(err)
				p.logger.WithError(err).WithField("org_id", orgID).Warn("Activity purge failed, continuing deprovision")
			}
		}
	} else {
		if err := p.svc.SetStatus(orgID, orgs.OrgStatusSuspended); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "status change failed")
			return err
		}
	}

	details := map[string]any{"permanent": permanent}
	if backupKey != "" {
		details["backup_key"] = backupKey
	}
	p.record(ctx, audit.EventTypeOrgDeprovision, orgID, details)

	span.SetStatus(codes.Ok, "deprovision complete")
	return nil
}
