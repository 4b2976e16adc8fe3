// Package cleanup implements the CleanupManager (§4.9): a policy-driven,
// caller-invoked artifact retention sweep for one task's working directory.
// There is no background scheduler; Apply runs when the apply_cleanup tool
// is called, and from the Pipeline at the end of a completed run when the
// default policy is on_completion.
package cleanup

import (
	"os"
	"path/filepath"
)

// Policy names the retention policy applied to a task's artifacts.
type Policy string

const (
	PolicyManual          Policy = "manual"
	PolicyAutoAfterHours  Policy = "auto_after_hours"
	PolicyAutoAfterDays   Policy = "auto_after_days"
	PolicyRetainAudioOnly Policy = "retain_audio_only"
	PolicyOnCompletion    Policy = "on_completion"
)

// DefaultPolicy is applied when a task carries no explicit override.
const DefaultPolicy = PolicyManual

// RetentionFlags controls which artifact categories within a task's working
// directory survive a cleanup pass.
type RetentionFlags struct {
	RetainAudioFiles    bool
	RetainTranscripts   bool
	RetainLLMOutputs    bool
	RetainAudioSegments bool
}

// flagsFor derives RetentionFlags from a named policy. Unknown policies
// behave like PolicyManual (retain everything) so a misconfigured override
// never silently deletes artifacts.
func flagsFor(p Policy) RetentionFlags {
	switch p {
	case PolicyRetainAudioOnly:
		return RetentionFlags{RetainAudioFiles: true}
	case PolicyOnCompletion, PolicyAutoAfterHours, PolicyAutoAfterDays:
		return RetentionFlags{}
	default:
		return RetentionFlags{RetainAudioFiles: true, RetainTranscripts: true, RetainLLMOutputs: true, RetainAudioSegments: true}
	}
}

// Layout names the per-category subpaths of a task's working directory, as
// laid out by the orchestrator (§6).
type Layout struct {
	Root             string
	FinalAudioPath   string // e.g. <root>/final.mp3
	TranscriptPath   string // e.g. <root>/transcript.txt
	LLMOutputsDir    string // e.g. <root>/logs
	AudioSegmentsDir string // e.g. <root>/audio_segments
}

// Report is what Apply returns, per §4.9's { cleaned_files, failed_files,
// total_size_freed } contract.
type Report struct {
	CleanedFiles   []string `json:"cleaned_files"`
	FailedFiles    []string `json:"failed_files"`
	TotalSizeFreed int64    `json:"total_size_freed"`
}

// Manager applies retention policy to task working directories. It never
// touches the StatusStore; lifecycle state is untouched by design.
type Manager struct {
	DefaultPolicy Policy
}

// New builds a Manager with the given default policy, falling back to
// PolicyManual if empty.
func New(defaultPolicy Policy) *Manager {
	if defaultPolicy == "" {
		defaultPolicy = DefaultPolicy
	}
	return &Manager{DefaultPolicy: defaultPolicy}
}

// Apply removes the artifact categories the resolved policy does not
// retain. override, if non-empty, takes precedence over the Manager's
// default for this call only, per §4.9's "per-task override is allowed at
// cleanup time."
func (m *Manager) Apply(layout Layout, override Policy) (Report, error) {
	policy := m.DefaultPolicy
	if override != "" {
		policy = override
	}
	flags := flagsFor(policy)

	var report Report

	remove := func(path string, retain bool) {
		if path == "" || retain {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				report.FailedFiles = append(report.FailedFiles, path)
			}
			return
		}
		size := sizeOf(path, info)
		if err := os.RemoveAll(path); err != nil {
			report.FailedFiles = append(report.FailedFiles, path)
			return
		}
		report.CleanedFiles = append(report.CleanedFiles, path)
		report.TotalSizeFreed += size
	}

	remove(layout.FinalAudioPath, flags.RetainAudioFiles)
	remove(layout.TranscriptPath, flags.RetainTranscripts)
	remove(layout.LLMOutputsDir, flags.RetainLLMOutputs)
	remove(layout.AudioSegmentsDir, flags.RetainAudioSegments)

	return report, nil
}

func sizeOf(path string, info os.FileInfo) int64 {
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	_ = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		total += fi.Size()
		return nil
	})
	return total
}
