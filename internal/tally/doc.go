// Package tally maintains each event's live answer tally.
//
// The first tabulable response bootstraps the results document in one
// write. Every later response is deferred to the update-reporting queue
// with a random delay and applied there as field-level increments, so the
// tally is never recomputed from history and never overwritten wholesale.
//
// Sanitize, TabulableQuestions and Count are pure and carry the whole
// bucketing rule; Aggregator and Updater only decide where the keys go.
package tally
