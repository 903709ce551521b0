package params

import "path/filepath"

const (
	BackendBolt     = "bolt"
	BackendFirebase = "firebase"
	BackendGSM      = "gsm"
)

type StoreConfig struct {
	// Backend is one of BackendBolt or BackendFirebase.
	Backend string

	// Path is the bbolt database file.
	Path string

	// FirebaseDatabaseURL is the realtime database URL, eg.
	// https://<project>-default-rtdb.europe-west1.firebasedatabase.app
	FirebaseDatabaseURL string
	// FirebaseRef is the path under which activities are keyed by id.
	// Empty means the database root.
	FirebaseRef string
	// FirebaseCredentialsFile is an optional service account JSON file.
	// Application default credentials are used when empty.
	FirebaseCredentialsFile string

	// ArchiveDir, if set, receives a gzipped NDJSON archive of every raw
	// activity fetched from Strava, per athlete.
	ArchiveDir string
}

func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend: BackendBolt,
		Path:    filepath.Join(DefaultDatadirRoot, ActivitiesDBName),
	}
}

type SecretsConfig struct {
	// Backend is one of BackendBolt or BackendGSM.
	Backend string

	// Path is the bbolt secrets file.
	Path string

	// Project is the Google Cloud project holding the secrets.
	Project         string
	CredentialsFile string
}

func DefaultSecretsConfig() *SecretsConfig {
	return &SecretsConfig{
		Backend: BackendBolt,
		Path:    filepath.Join(DefaultDatadirRoot, SecretsDBName),
	}
}
