package common

// File permission constants shared by everything that writes to disk
const (
	// FilePermissionSecure is used for config files and the run state database
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for report artifacts
	FilePermissionNormal = 0644

	// DirPermissionSecure is used for the state directory
	DirPermissionSecure = 0700

	// DirPermissionNormal is used for output and data directories
	DirPermissionNormal = 0755
)
