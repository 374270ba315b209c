package config

const (
	defaultArtifactRoot      = "~/artifacts"
	defaultLogDir            = "~/.local/share/ferry/logs"
	defaultLogRetentionDays  = 60
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultRemotePort        = 22
	defaultConnectTimeout    = 10
	defaultIdentity          = "~/.config/ferry/identity"
	defaultKnownHosts        = "~/.config/ferry/known_hosts"
	defaultWatchMode         = WatchModeAuto
	defaultSweepInterval     = 60
	defaultMaxAttempts       = 5
	defaultStaleLockMinutes  = 60
	defaultCleanup           = CleanupArchive
	defaultArchiveDir        = "_pushed"
	defaultRsyncBinary       = "rsync"
	defaultSSHBinary         = "ssh"
	defaultRetentionDays     = 14
	defaultRetentionInterval = 3600
	defaultNotifyTimeout     = 10
	defaultHTTPBind          = "127.0.0.1:9316"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Sync: Sync{
			ArtifactRoot: defaultArtifactRoot,
		},
		Remote: Remote{
			Port:           defaultRemotePort,
			Identity:       defaultIdentity,
			KnownHosts:     defaultKnownHosts,
			ConnectTimeout: defaultConnectTimeout,
		},
		Watch: Watch{
			Mode:          defaultWatchMode,
			SweepInterval: defaultSweepInterval,
		},
		Push: Push{
			MaxAttempts:      defaultMaxAttempts,
			StaleLockMinutes: defaultStaleLockMinutes,
			Cleanup:          defaultCleanup,
			ArchiveDir:       defaultArchiveDir,
			RsyncBinary:      defaultRsyncBinary,
			SSHBinary:        defaultSSHBinary,
		},
		Retention: Retention{
			Days:          defaultRetentionDays,
			SweepInterval: defaultRetentionInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			LogDir:        defaultLogDir,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Pushes:         true,
			Failures:       true,
			Retention:      true,
			Daemon:         true,
		},
		API: API{
			HTTPBind: defaultHTTPBind,
		},
	}
}
