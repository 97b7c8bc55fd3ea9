// Package orchestrator drives pipeline executions through the stage DAG.
//
// Workers claim pending executions from the store, validate the source,
// then run the preprocess stage, fan out into the audio and visual branches
// concurrently, and join before compiling the report. Each stage runs under
// its configured retry policy with exponential backoff, and every completed
// stage advances the persisted checkpoint so interrupted or reopened
// executions resume after the last finished stage instead of starting over.
package orchestrator
