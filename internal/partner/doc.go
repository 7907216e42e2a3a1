// Package partner exports survey responses to a brand's partner API.
//
// Two paths feed the same mapping: Uploader sends one response right after
// submission (and retries through the partner-upload queue), and Batcher
// sweeps every not-yet-exported response of the brand's in-window events
// once a day in at most two bulk calls.
package partner
