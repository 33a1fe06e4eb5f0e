package config

// Config holds the settings of one named storage connection.
type Config struct {
	Type            string `yaml:"type"`             // "local" or "gcs"
	BucketName      string `yaml:"bucket_name"`      // default bucket
	CredentialsFile string `yaml:"credentials_file"` // service account key for gcs
	ProjectID       string `yaml:"project_id"`
	BaseDir         string `yaml:"base_dir"` // root directory for local storage
	// Endpoint overrides the gcs API endpoint, e.g. for an emulator.
	Endpoint string `yaml:"endpoint"`
}
