package analysis

import "context"

// Runner port (interface untuk eksekusi analysis process)
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// FileWriter port for the working file. WriteFile must replace the file
// atomically so a reader never sees a partial payload.
type FileWriter interface {
	WriteFile(path string, data []byte) error
	Remove(path string) error
}
