package runner

// Execution constants
const (
	// DefaultParallelism is used when no worker-pool size is configured
	DefaultParallelism = 1

	// MaxReasonableParallelism caps auto-determined parallelism to avoid resource exhaustion
	MaxReasonableParallelism = 32

	// ArtifactsDirName is the directory under the output directory where step artifacts are kept
	ArtifactsDirName = "artifacts"

	// tracerName identifies the spans emitted by this package
	tracerName = "op-narrator/runner"
)
