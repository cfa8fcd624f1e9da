package llm

import (
	"fmt"
	"strings"
)

type pollPath string

const (
	pollPathManaged pollPath = "managed"
	pollPathREST    pollPath = "rest"
	pollPathGuard   pollPath = "guard"
)

type outcomeKind int

const (
	outcomeTransportError outcomeKind = iota
	outcomePending
	outcomeCompleted
	outcomeFailed
)

// pollOutcome is what either transport path reports before normalisation.
type pollOutcome struct {
	path      pollPath
	kind      outcomeKind
	rawStatus string
	outputURL string
	message   string
	err       error
}

func transportFailure(path pollPath, err error) pollOutcome {
	return pollOutcome{path: path, kind: outcomeTransportError, err: fmt.Errorf("%w: %v", errTransport, err)}
}

func providerFailure(path pollPath, message string) pollOutcome {
	return pollOutcome{path: path, kind: outcomeFailed, message: message}
}

func completedOutcome(path pollPath, envelope *falResultEnvelope) pollOutcome {
	return pollOutcome{path: path, kind: outcomeCompleted, outputURL: envelope.outputURL()}
}

// normalize folds every outcome into a PollResult. Transport errors become
// processing; a completion without any image is a failure.
func (o pollOutcome) normalize() PollResult {
	switch o.kind {
	case outcomeCompleted:
		if strings.TrimSpace(o.outputURL) == "" {
			return failed("generation completed without an output image")
		}
		return PollResult{Status: StatusCompleted, OutputURL: o.outputURL}
	case outcomeFailed:
		msg := strings.TrimSpace(o.message)
		if msg == "" {
			msg = "generation failed at provider"
		}
		return failed(msg)
	default:
		return processing()
	}
}
