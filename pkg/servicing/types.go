package servicing

// ImageKind distinguishes the installation image from the pre-boot
// recovery image. Boot images get drivers only, never update packages.
type ImageKind string

const (
	KindInstall ImageKind = "install"
	KindBoot    ImageKind = "boot"
)

// ImageRef identifies one image container for the duration of a run.
type ImageRef struct {
	Path string
	Kind ImageKind
}

// ServiceRequest is the FSM input: one image index to service.
type ServiceRequest struct {
	ImagePath string
	Kind      ImageKind
	Index     int
}

// ServiceResponse is the FSM output (accumulated across transitions).
type ServiceResponse struct {
	// From mount
	RecordID int64
	MountDir string

	// From apply_updates
	PackagesApplied int

	// From commit/failure
	Status       string
	ErrorMessage string
}

// State names
const (
	StateMount         = "mount"
	StateInjectDrivers = "inject_drivers"
	StateApplyUpdates  = "apply_updates"
	StateVerify        = "verify"
	StateCommit        = "commit"
	StateFailed        = "failed"
)
