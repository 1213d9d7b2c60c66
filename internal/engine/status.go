package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/IshaanNene/igscrape/internal/notify"
	"github.com/IshaanNene/igscrape/internal/storage"
)

// RunState is the lifecycle state recorded in the status file.
type RunState string

const (
	RunRunning     RunState = "running"
	RunFinished    RunState = "finished"
	RunInterrupted RunState = "interrupted"

	InspectorPending RunState = "pending"
	InspectorRunning RunState = "running"
	InspectorOK      RunState = "ok"
	InspectorFailed  RunState = "failed"
)

// Status is the content of the status file: the last run, plus the most
// recent result of every inspector that has ever run.
type Status struct {
	State      RunState                    `json:"state"`
	Started    time.Time                   `json:"started"`
	Updated    time.Time                   `json:"updated"`
	Finished   time.Time                   `json:"finished,omitzero"`
	DryRun     bool                        `json:"dry_run,omitempty"`
	Inspectors map[string]*InspectorStatus `json:"inspectors"`
}

// InspectorStatus is one inspector's latest result.
type InspectorStatus struct {
	State   RunState  `json:"state"`
	Started time.Time `json:"started,omitzero"`
	notify.Result
}

// Sorted returns the inspector entries ordered by slug.
func (s *Status) Sorted() []*InspectorStatus {
	out := make([]*InspectorStatus, 0, len(s.Inspectors))
	for _, is := range s.Inspectors {
		out = append(out, is)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Inspector < out[j].Inspector })
	return out
}

// StatusFile keeps the status file current during a run. Every change is
// written atomically so a reader never sees a partial file.
type StatusFile struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	status Status
}

// NewStatusFile prepares the status file at path. An empty path disables it.
func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: path, now: time.Now}
}

// LoadStatus reads a status file.
func LoadStatus(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", path, err)
	}
	if s.Inspectors == nil {
		s.Inspectors = make(map[string]*InspectorStatus)
	}
	return &s, nil
}

// Begin starts a run over slugs. Entries for inspectors outside the run are
// carried over from the previous file.
func (f *StatusFile) Begin(slugs []string, dryRun bool) error {
	if f.path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	inspectors := make(map[string]*InspectorStatus)
	prev, loadErr := LoadStatus(f.path)
	switch {
	case loadErr == nil:
		inspectors = prev.Inspectors
	case errors.Is(loadErr, os.ErrNotExist):
		loadErr = nil
	}

	now := f.now()
	for _, slug := range slugs {
		inspectors[slug] = &InspectorStatus{
			State:  InspectorPending,
			Result: notify.Result{Inspector: slug},
		}
	}
	f.status = Status{
		State:      RunRunning,
		Started:    now,
		Updated:    now,
		DryRun:     dryRun,
		Inspectors: inspectors,
	}
	if err := f.save(); err != nil {
		return err
	}
	if loadErr != nil {
		return fmt.Errorf("previous status discarded: %w", loadErr)
	}
	return nil
}

// Start marks an inspector as running.
func (f *StatusFile) Start(slug string) error {
	if f.path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status.Inspectors == nil {
		f.status.Inspectors = make(map[string]*InspectorStatus)
	}
	f.status.Inspectors[slug] = &InspectorStatus{
		State:   InspectorRunning,
		Started: f.now(),
		Result:  notify.Result{Inspector: slug},
	}
	return f.save()
}

// Done records an inspector's result.
func (f *StatusFile) Done(res notify.Result) error {
	if f.path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status.Inspectors == nil {
		f.status.Inspectors = make(map[string]*InspectorStatus)
	}
	is, ok := f.status.Inspectors[res.Inspector]
	if !ok {
		is = &InspectorStatus{}
		f.status.Inspectors[res.Inspector] = is
	}
	is.Result = res
	is.State = InspectorOK
	if res.Failed() {
		is.State = InspectorFailed
	}
	return f.save()
}

// Finish closes the run.
func (f *StatusFile) Finish(interrupted bool) error {
	if f.path == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.status.State = RunFinished
	if interrupted {
		f.status.State = RunInterrupted
	}
	f.status.Finished = f.now()
	return f.save()
}

// Snapshot returns a copy of the current status.
func (f *StatusFile) Snapshot() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.status
	s.Inspectors = make(map[string]*InspectorStatus, len(f.status.Inspectors))
	for k, v := range f.status.Inspectors {
		c := *v
		s.Inspectors[k] = &c
	}
	return s
}

// save must be called with f.mu held.
func (f *StatusFile) save() error {
	f.status.Updated = f.now()
	data, err := json.MarshalIndent(f.status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := storage.WriteFileAtomic(f.path, append(data, '\n')); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}
