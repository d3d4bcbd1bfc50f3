// Package notifications announces finished reconciliation runs.
//
// Two transports are supported: ntfy (an HTTP POST to the configured topic
// URL) and MQTT (a JSON summary published to a broker topic). Both are
// optional; with neither configured NewService returns a no-op. Callers only
// depend on the Service interface.
package notifications
