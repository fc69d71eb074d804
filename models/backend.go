package models

// Backend identifies which storage destination is authoritative.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Reserved local-store keys holding backend selection state so it
// survives restarts.
const (
	KeyBackendFlag = "storage_backend"
	KeyMigrated    = "pod_migrated"
)

// StorageStatus reports the state of the storage subsystem to clients.
type StorageStatus struct {
	Backend   Backend `json:"backend"`
	Migrated  bool    `json:"migrated"`
	Available bool    `json:"available"`
}
