// Package engine drives provisioning runs.
//
// # Overview
//
// A run is a sequence of stages. Each stage is made of steps, and each step
// is handed to a StepRunner:
//
//  1. Bootstrap - the base system script, bootstrap/arch.sh
//  2. Packages - the trait packages declared for the target platform
//  3. Pillars - one stage per selected pillar directory, in profile order
//
// Runs start in one of two modes. ProvisionFromProfile loads a profile,
// resolves its traits into an effective configuration and runs the stages it
// selects as one pipeline. ProvisionDirect runs the bootstrap and a list of
// pillars independently; a failed stage never stops the next one.
//
// # Continuation
//
// When a step fails the PillarExecutor asks its ContinuationDecision whether
// to go on with the rest of the stage. In profile mode the Orchestrator asks
// again after every failed stage, and a refusal ends the run without the
// completion message. Missing step scripts are warnings and never prompt.
//
// # Error Classification
//
// Errors are classified so callers can decide what to do with them:
//
//   - Fatal: the run cannot start (missing or invalid profile)
//   - Soft: logged and ignored (missing trait)
//   - Stage: fails the current stage (missing pillar or bootstrap)
//   - Warning: reported only (missing step)
//   - Recoverable: a failed step the operator may continue past
//
// Use the helpers to inspect them:
//
//	if errors.Is(err, engine.ErrConfigNotFound) {
//	    // exit 1
//	}
//
// # Observability
//
// Stages and steps are traced through the global OpenTelemetry provider and
// reported to an optional Observer. Finished runs, including aborted and
// cancelled ones, are handed to the RunRecorder.
package engine
