// Package device defines the fingerprint data model shared by the record
// store, the collectors, the extractor, the classifier, and the merge engine.
//
// A DeviceRecord keeps manufacturer and product tokens as two parallel,
// insertion-ordered sets that mirror the on-disk record format. Pairing
// between the two sets is enforced when candidates are accepted, never in
// storage. Token sets only grow: there is deliberately no removal API.
package device
