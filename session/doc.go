// Package session keeps conversations across runs.
//
// A Session is the memory a follow-up run resumes from plus a short record of
// the runs that produced it. The runner loads a session before a run and
// saves the run's memory afterwards; the Store interface lets callers plug in
// a durable backend without touching the runner.
package session
