package mirror

import (
	"fmt"
	"strings"
	"time"
)

// RemoteOnlyPolicy decides what happens to files that exist only on the server.
type RemoteOnlyPolicy int

const (
	PolicyKeep RemoteOnlyPolicy = iota
	PolicyDownload
	PolicyDelete
)

func (p RemoteOnlyPolicy) String() string {
	switch p {
	case PolicyDownload:
		return "download"
	case PolicyDelete:
		return "delete"
	default:
		return "keep"
	}
}

// ParsePolicy parses keep, download or delete.
func ParsePolicy(s string) (RemoteOnlyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return PolicyKeep, nil
	case "download":
		return PolicyDownload, nil
	case "delete":
		return PolicyDelete, nil
	}
	return PolicyKeep, fmt.Errorf("invalid remote-only policy %q (want keep, download or delete)", s)
}

// RunState is the stage a mirror run has reached. Runs only move forward.
type RunState int

const (
	StateInit RunState = iota
	StateConnected
	StateScanned
	StateClassified
	StateTransferred
	StatePolicyApplied
	StateDone
)

var runStateNames = [...]string{"init", "connected", "scanned", "classified", "transferred", "policy-applied", "done"}

func (s RunState) String() string {
	if int(s) < len(runStateNames) {
		return runStateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Request describes one mirror run.
type Request struct {
	// Server is the registry nickname.
	Server string
	// LocalDir is the local tree root.
	LocalDir string
	// RemoteDir is the tree root relative to the server root.
	RemoteDir string
	// Policy applies to remote-only files.
	Policy RemoteOnlyPolicy
	// IgnoreFiles are loaded in order; missing files are skipped.
	IgnoreFiles []string
}

// Report summarizes a run. It is returned even when the run fails part way.
type Report struct {
	RunID           string    `json:"run_id"`
	Server          string    `json:"server"`
	LocalDir        string    `json:"local_dir"`
	RemoteDir       string    `json:"remote_dir"`
	Policy          string    `json:"policy"`
	State           string    `json:"state"`
	Same            int       `json:"same"`
	Uploaded        []string  `json:"uploaded"`
	Downloaded      []string  `json:"downloaded"`
	Deleted         []string  `json:"deleted"`
	Kept            []string  `json:"kept"`
	BytesUploaded   int64     `json:"bytes_uploaded"`
	BytesDownloaded int64     `json:"bytes_downloaded"`
	Cautions        int       `json:"cautions"`
	Error           string    `json:"error,omitempty"`
	Started         time.Time `json:"started"`
	Finished        time.Time `json:"finished"`

	state RunState
}

// RunState returns the last state the run reached.
func (r *Report) RunState() RunState {
	return r.state
}

func (r *Report) advance(s RunState) {
	r.state = s
	r.State = s.String()
}
