package analysis

// RunRequest untuk Runner
type RunRequest struct {
	// InputPath is the absolute path of the working file
	InputPath string
	// ExtraArgs are appended after the runner's fixed arguments
	ExtraArgs []string
}

// RunResult hasil dari Runner
type RunResult struct {
	Stdout     []byte
	Stderr     []byte
	ExitCode   int
	DurationMS int64
}
