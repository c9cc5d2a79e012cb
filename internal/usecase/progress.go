package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
)

// The backend reports pipeline progress as free text. The substring
// matches below are a de facto contract with the backend; they are
// case-sensitive and deliberately isolated here so the contract surface
// stays explicit and testable.

var chunkCountPattern = regexp.MustCompile(`(\d+) chunks`)

const (
	labelReceiving    = "Receiving audio"
	labelConverting   = "Converting audio"
	labelTranscribing = "Transcribing"
	labelGenerating   = "Generating note"
	labelComplete     = "Note complete"
)

// statusMapping is the derived stage and progress for one status line.
type statusMapping struct {
	Stage    domain.ProcessingStage
	Label    string
	Percent  int
	Complete bool
	Known    bool
}

// mapStatus pattern-matches backend status text into a processing stage
// and progress band. chunkWindow selects the chunk-count feedback band,
// which is only meaningful while audio is still being received.
func mapStatus(status string, chunkWindow bool) statusMapping {
	if m := chunkCountPattern.FindStringSubmatch(status); m != nil && chunkWindow {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			percent := 15 + 2*n
			if percent > 40 {
				percent = 40
			}
			return statusMapping{Label: labelReceiving, Percent: percent, Known: true}
		}
	}

	switch {
	case strings.Contains(status, "Converting"):
		return statusMapping{Stage: domain.StageConverting, Label: labelConverting, Percent: 20, Known: true}
	case strings.Contains(status, "converted"):
		return statusMapping{Stage: domain.StageConverting, Label: labelConverting, Percent: 25, Known: true}
	case strings.Contains(status, "Transcribing"):
		return statusMapping{Stage: domain.StageTranscribing, Label: labelTranscribing, Percent: 50, Known: true}
	case strings.Contains(status, "Generating"):
		return statusMapping{Stage: domain.StageGeneratingNote, Label: labelGenerating, Percent: 75, Known: true}
	case strings.Contains(status, "complete"):
		return statusMapping{Label: labelComplete, Percent: 100, Complete: true, Known: true}
	}

	return statusMapping{}
}
