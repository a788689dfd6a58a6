package model

import "time"

// RunRecord represents a single cyreport execution. It is written as run.json
// into the results directory once reporting has finished.
type RunRecord struct {
	// Unique ID for this execution (16 random bytes, hex encoded)
	ID string `json:"id"`
	// Suite that was executed
	Suite string `json:"suite"`
	// Timestamp when the execution started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Results directory the artifacts were collected from
	ResultsDir string `json:"results_dir"`
	// Exit code of the execution
	ExitCode int `json:"exit_code"`
	// Duration of execution
	Duration time.Duration `json:"duration"`
	// Target execution environment
	Target *Target `json:"target,omitempty"`
	// Outcome of the framework run
	Result *RunResult `json:"result,omitempty"`
	// Assets handed to the reporting service
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// Outcome of publishing to the reporting service
	Reporting *Reporting `json:"reporting,omitempty"`
}

// Target contains information about the execution environment
type Target struct {
	// Browser the suite ran in
	Browser string `json:"browser,omitempty"`
	// Operating system of the execution environment
	OS string `json:"os,omitempty"`
	// CPU architecture of the execution environment
	Arch string `json:"arch,omitempty"`
}

// Reporting mirrors the status file written after every publish attempt.
type Reporting struct {
	JobDetailsURL string `json:"jobDetailsUrl,omitempty"`
	Succeeded     bool   `json:"reportingSucceeded"`
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeConsoleLog ArtifactType = iota
	ArtifactTypeMetric
	ArtifactTypeScreenshot
	ArtifactTypeSpecJSON
	ArtifactTypeSpecXML
	ArtifactTypeMergedVideo
	ArtifactTypeMergedJUnit
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeConsoleLog:
		return "console"
	case ArtifactTypeMetric:
		return "metric"
	case ArtifactTypeScreenshot:
		return "screenshot"
	case ArtifactTypeSpecJSON:
		return "json"
	case ArtifactTypeSpecXML:
		return "xml"
	case ArtifactTypeMergedVideo:
		return "video"
	case ArtifactTypeMergedJUnit:
		return "junit"
	}
	return "unknown"
}

// Artifact represents a file handed to the reporting service
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"`
}

// Paths returns the file paths of the given artifacts, in order.
func Paths(artifacts []Artifact) []string {
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		paths = append(paths, a.File)
	}
	return paths
}
