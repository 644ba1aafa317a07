// Package job manages the exclusive temporary directory each request works in.
package job

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Job is one request's working set: every intermediate and final artifact
// lives under Dir, and Dir is removed once the response has been handed off.
type Job struct {
	ID  string
	Dir string
}

// New creates a uniquely named job directory under baseDir. IDs are random,
// so two requests arriving in the same millisecond cannot collide.
func New(baseDir string) (*Job, error) {
	id := uuid.NewString()
	dir := filepath.Join(baseDir, "job-"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	return &Job{ID: id, Dir: dir}, nil
}

// Path returns the absolute location of a named artifact inside the job dir.
func (j *Job) Path(name string) string {
	return filepath.Join(j.Dir, name)
}

// Cleanup removes the job directory and everything in it. Safe to call more
// than once; a directory that is already gone is not an error. Failures are
// logged and never surfaced, cleanup must not change the client's response.
func (j *Job) Cleanup() {
	if err := os.RemoveAll(j.Dir); err != nil {
		log.Printf("[job %s] cleanup failed: %v", j.ID, err)
	}
}
