// Package app is the composition layer: it turns configuration into a wired
// runtime (stores, journal, awareness core, world orchestrator, admin HTTP
// API) and manages the process lifecycle around it.
//
// Nothing in this package contains domain behavior. Store adapters live
// under internal/stores, lifecycle logic in internal/world and
// internal/awareness, and background tasks in internal/automation; app only
// decides which implementations run and hands them their collaborators.
package app
