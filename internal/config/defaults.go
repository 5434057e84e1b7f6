package config

const (
	defaultConfigPath      = "~/.config/nightproc/config.toml"
	defaultTableDir        = "~/.local/share/nightproc/processing_tables"
	defaultExposureDir     = "~/.local/share/nightproc/exposure_tables"
	defaultLogDir          = "~/.local/share/nightproc/logs"
	defaultTableFormat     = "csv"
	defaultQueueBackend    = "slurm"
	defaultSbatchBinary    = "sbatch"
	defaultSacctBinary     = "sacct"
	defaultPartition       = "realtime"
	defaultCoresPerNode    = 64
	defaultSubmitTimeout   = 60
	defaultPollTimeout     = 120
	defaultPollBatchSize   = 50
	defaultPollConcurrency = 4
	defaultMaxArcExpTime   = 8.0
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultRetentionDays   = 30

	defaultCommandTemplate = `{{if .JointFit}}desi_proc_joint_fit{{else}}desi_proc{{end}} --night {{.Night}} --expids {{join .ExpIDs ","}} --obstype {{.ObsType}} --cameras {{.Cameras}}{{if .BadAmps}} --badamps {{.BadAmps}}{{end}}`
)

var (
	defaultResubmitStates  = []string{"BOOT_FAIL", "DEADLINE", "NODE_FAIL", "OUT_OF_MEMORY", "PREEMPTED", "TIMEOUT"}
	defaultProcessObsTypes = []string{"arc", "flat", "science", "twilight", "dark", "zero"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TableDir:    defaultTableDir,
			ExposureDir: defaultExposureDir,
			LogDir:      defaultLogDir,
		},
		Tables: Tables{
			Format: defaultTableFormat,
		},
		Queue: Queue{
			Backend:         defaultQueueBackend,
			SbatchBinary:    defaultSbatchBinary,
			SacctBinary:     defaultSacctBinary,
			Partition:       defaultPartition,
			CoresPerNode:    defaultCoresPerNode,
			SubmitTimeout:   defaultSubmitTimeout,
			PollTimeout:     defaultPollTimeout,
			PollBatchSize:   defaultPollBatchSize,
			PollConcurrency: defaultPollConcurrency,
		},
		Resubmit: Resubmit{
			States: append([]string(nil), defaultResubmitStates...),
		},
		Jobs: Jobs{
			CommandTemplate: defaultCommandTemplate,
			ProcessObsTypes: append([]string(nil), defaultProcessObsTypes...),
			MaxArcExpTime:   defaultMaxArcExpTime,
		},
		Dependencies: Dependencies{
			AllowMissing: true,
			ArcFallback:  true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetentionDays,
		},
	}
}
