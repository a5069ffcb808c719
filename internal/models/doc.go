// Package models defines domain entities and persistence interfaces for postx.
//
// The package contains two categories of types:
//
// 1. Persistent Entities: Database-backed models
//   - [Account] : A connected platform identity with its OAuth credentials
//   - [Post] : A video post composed for an account
//   - [SchedulerJob] : A pending publication of a [Post] at a point in time
//
// 2. Profiles: Per-platform profile data stored with an account
//   - [TikTokProfile] and [YouTubeProfile] carry strongly typed fields
//   - [BasicProfile] covers platforms we only store a name for
//
// [Profile] is a tagged union keyed by [PlatformType]. Each variant normalizes to a [DisplayProfile]
// holding the fields shown in listings (name, avatar, follower-equivalent count).
//
// All persistent entities implement the [Model] interface, and the [Repository] interface defines standard CRUD operations.
package models
