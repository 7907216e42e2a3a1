// Package model defines the records the scheduling and aggregation pipeline
// reads and writes: events, survey responses, answers and result tallies.
//
// The JSON shapes mirror the documents the admin UI and intake layer store,
// including the underscore-prefixed system fields on responses and the
// double-underscore bookkeeping keys inside an event's results.
package model
