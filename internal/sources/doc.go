// Package sources defines the collector contract shared by the history,
// web and issue tracker collectors, plus the fan-out that runs them.
//
// A collector never fails a run. Network and parse failures are logged,
// summarized in Result.Err, and whatever was gathered is still returned. An
// expired budget truncates the result instead of producing an error.
package sources
