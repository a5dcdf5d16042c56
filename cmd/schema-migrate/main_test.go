package main

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/financeiro_backend/migrator"
	"bitbucket.org/mmdatafocus/financeiro_backend/schema"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	clean := &migrator.Summary{Steps: []migrator.StepResult{
		{ID: "001", Outcome: migrator.OutcomeApplied},
		{ID: "002", Outcome: migrator.OutcomeSkipped},
	}}
	partial := &migrator.Summary{Steps: []migrator.StepResult{
		{ID: "001", Outcome: migrator.OutcomeApplied},
		{ID: "002", Outcome: migrator.OutcomeFailed, Err: errors.New("boom")},
	}}

	assert.Equal(t, exitOK, exitCode(clean, nil))
	assert.Equal(t, exitOK, exitCode(&migrator.Summary{}, nil))
	assert.Equal(t, exitPartial, exitCode(partial, nil))
	assert.Equal(t, exitCritical, exitCode(partial, &migrator.StepError{StepID: "001", Critical: true, Err: errors.New("boom")}))
	assert.Equal(t, exitCritical, exitCode(nil, &schema.ConnectionError{Err: errors.New("refused")}))
}
