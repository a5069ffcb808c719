// Package repositories implements SQLite persistence for accounts, posts and scheduler jobs.
//
// It is the token store and CRUD surface the OAuth and upload flows depend on.
//
// Key Implementations:
//   - [AccountRepository] : Connected accounts keyed by (platform, platform account id), with upsert on reconnect
//     and cascading delete of posts and scheduler jobs
//   - [PostRepository] : Posts and their publication status
//   - [SchedulerJobRepository] : Pending publications, claimed by the dispatcher when due
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
//
// All timestamps are stored in UTC so that range queries compare correctly.
package repositories
