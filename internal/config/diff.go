package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// takes effect with the next process start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CredentialsChanged is true when the static AWS key pair, session token
	// or region changed. New sessions presign with the new values.
	CredentialsChanged bool

	// AccessTokenChanged is true when the downstream API token changed.
	AccessTokenChanged bool
}

// Changed reports whether any tracked field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.CredentialsChanged || d.AccessTokenChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.AWS != new.AWS {
		d.CredentialsChanged = true
	}

	if old.API.AccessToken != new.API.AccessToken {
		d.AccessTokenChanged = true
	}

	return d
}
