// Package tasks runs uploads against platform clients with real-time progress reporting.
//
// # Upload Orchestrator
//
// [UploadOrchestrator.Run] moves through IDLE → INITIALIZING → UPLOADING → PROCESSING and ends in
// SUCCESS or ERROR:
//
//  1. Validate the file against [Limits] (size, type, duration) before any network call
//  2. Open an upload session with the platform client
//  3. Upload chunks 0..n-1 in order, aborting on the first rejected chunk
//  4. Complete the upload and publish it
//  5. Poll the publish status at a fixed interval for a bounded number of attempts
//
// An orchestrator runs once. Running it again returns [shared.ErrOrchestratorFinished].
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, the upload percentage, messages, and optional data.
// Updates use select with default to prevent blocking. Failures are reported as a [PhaseError] update in
// addition to the returned error.
//
// # Scheduled Posts
//
// [Dispatcher.RunDue] claims due scheduler jobs and publishes their posts on a rate limited worker pool,
// one fresh orchestrator per job. [Dispatcher.Watch] repeats that on a ticker.
package tasks
