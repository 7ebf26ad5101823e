// Package store holds the observable polling state for crawlwatch.
//
// This package is internal to crawlwatch. It keeps the single current
// [StateResult] and implements a publish-subscribe pattern so the console
// server can push every transition to connected browsers.
//
// The main components are:
//
//   - [Store]: Interface defining state storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [StateResult]: Storage representation of the observable state
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss intermediate states rather than block the poller,
// which publishes while holding its lock).
package store
