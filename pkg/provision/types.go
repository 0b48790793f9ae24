package provision

// Status is the aggregate outcome of a provisioning run
type Status string

const (
	StatusSuccess            Status = "success"
	StatusPartialSuccess     Status = "partialSuccess"
	StatusFailed             Status = "failed"
	StatusAlreadyProvisioned Status = "alreadyProvisioned"
)

// Step completion tags. Each provisioning step reports exactly one of these
// when it completes.
const (
	StepAdminUserCreated           = "adminUserCreated"
	StepDefaultSettingsInitialized = "defaultSettingsInitialized"
	StepTierFeaturesConfigured     = "tierFeaturesConfigured"
	StepOrganizationVerified       = "organizationVerified"
	StepWelcomeNotificationSent    = "welcomeNotificationSent"
)

// StepError pairs a failed step with its error
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

// Result reports a provisioning run. StepsCompleted lists the tags of the
// steps that finished; Errors lists the steps that did not, with causes.
type Result struct {
	Status         Status
	StepsCompleted []string
	Errors         []StepError
}

// AdminInfo identifies the organization's initial administrator
type AdminInfo struct {
	UserID int64
	Email  string
}
