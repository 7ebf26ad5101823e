// Package crawlwatch watches crawl jobs on a remote crawler API until they
// finish.
//
// An operator picks a hotel and a set of OTA sources, triggers a crawl, and
// wants to see each source move from PENDING to SUCCESS or FAILURE. The
// crawl runs remotely and asynchronously; crawlwatch polls its status
// resource and turns the answers into a single observable [State].
//
// # Quick Start
//
//	w, _ := crawlwatch.New(crawlwatch.WithBaseURL("http://localhost:8000/api"))
//	defer w.Close()
//
//	key, _ := crawlwatch.NewMonitorKey("42", crawlwatch.WithSources("expedia", "agoda"))
//	w.StartSession(ctx, key)
//
//	for st := range w.Subscribe() {
//	    fmt.Println(st.Phase, len(st.Snapshot))
//	}
//
// # Polling
//
// A session waits a warm-up delay (20s by default) before its first fetch,
// because a freshly triggered crawl has nothing to report yet. After each
// completed fetch it waits a fixed interval (10s by default) and fetches
// again. Fetches never overlap.
//
// A session ends when the snapshot is non-empty and every target is
// [StateSuccess] or [StateFailure] ([PhaseDone]), or on the first failed
// fetch ([PhaseErrored]). There are no retries: starting the same key again
// re-arms it.
//
// Switching to another key, stopping, or cancelling the context given to
// [Watcher.StartSession] cancels the in-flight fetch and drops its result.
//
// # Decoders
//
// Status bodies are turned into a [Snapshot] by a [SnapshotDecoder]:
//
//   - [ListDecoder]: a JSON array of target records
//   - [ListDecoderAt]: a record array nested in an object
//   - [TaskDecoder]: a single background-task object
//   - [FirstDecoder]: tries decoders in order
//   - [DefaultDecoder]: bare array, then a paginated "results" envelope
//
// # Architecture
//
//   - internal/poller: status client, scheduler, lifecycle guard, projector
//   - internal/store: in-memory state with pub/sub for live updates
//   - internal/server: operator console with REST API and Server-Sent Events
//   - dashboard: embedded console page
package crawlwatch
