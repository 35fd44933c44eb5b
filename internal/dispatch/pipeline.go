// Package dispatch runs a submission through an ordered pipeline of named
// steps. Each step returns a tagged result, which makes the quirky policy
// of the flow — "duplicate record is not fatal", "email vendor 429
// downgrades to a 200 with a caveat" — visible and testable per step
// instead of buried in nested error handling.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/joaodesousa/outplay-forms/internal/cms"
)

// State is the mutable context threaded through one submission.
type State struct {
	Endpoint string
	ClientID string
	Record   cms.Record

	// ID is the content-store record ID once created.
	ID string
	// Caveat, when set, is appended to the success response (e.g. the
	// welcome email was deferred because the vendor rate-limited us).
	Caveat string
}

type resultKind int

const (
	kindContinue resultKind = iota
	kindShortCircuit
	kindFail
)

// Result is the tagged outcome of one step.
type Result struct {
	kind resultKind
	code int
	body map[string]interface{}
	err  error
}

// Continue proceeds to the next step.
func Continue() Result { return Result{kind: kindContinue} }

// ShortCircuit stops the pipeline and responds immediately with code/body.
func ShortCircuit(code int, body map[string]interface{}) Result {
	return Result{kind: kindShortCircuit, code: code, body: body}
}

// Fail aborts the pipeline with an error for the endpoint boundary to map.
func Fail(err error) Result { return Result{kind: kindFail, err: err} }

// Step is one named stage of the pipeline.
type Step struct {
	Name string
	Run  func(ctx context.Context, st *State) Result
}

// Pipeline executes steps in order.
type Pipeline struct {
	Logger *log.Logger
	Steps  []Step
}

// Run drives the submission through every step. It returns the HTTP status
// and JSON body to send, or an error for the boundary to translate. When
// every step continues, the response is the standard success shape.
func (p *Pipeline) Run(ctx context.Context, st *State) (int, map[string]interface{}, error) {
	for _, step := range p.Steps {
		res := step.Run(ctx, st)
		switch res.kind {
		case kindContinue:
			continue
		case kindShortCircuit:
			p.logf("%s: %s short-circuited with %d", st.Endpoint, step.Name, res.code)
			return res.code, res.body, nil
		case kindFail:
			return 0, nil, fmt.Errorf("%s: %w", step.Name, res.err)
		}
	}

	body := map[string]interface{}{"success": true}
	if st.ID != "" {
		body["id"] = st.ID
	}
	if st.Caveat != "" {
		body["message"] = st.Caveat
	}
	return http.StatusOK, body, nil
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}
