package har

import (
	"slices"
	"sync"
)

const creatorName = "scrapeflow"

// Recorder accumulates entries of live traffic into an archive, it is safe
// for concurrent use.
type Recorder struct {
	path    string
	mutex   sync.Mutex
	entries Entries
}

// NewRecorder creates a recorder, if path is not empty Flush writes the
// archive there.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

func (r *Recorder) Write(id string, entry Entry) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *Recorder) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.entries)
}

// Archive returns a snapshot of everything recorded so far.
func (r *Recorder) Archive() *Archive {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return &Archive{
		Log: Log{
			Version: "1.2",
			Creator: Creator{Name: creatorName, Version: "1"},
			Entries: slices.Clone(r.entries),
		},
	}
}

func (r *Recorder) Flush() error {
	if r.path == "" {
		return nil
	}
	return r.Archive().WriteFile(r.path)
}
