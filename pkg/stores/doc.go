// Package stores provides the optional run history of forge. It is a SQLite
// database (WAL mode, embedded migrations) holding every recorded run with
// its stages, steps and continuation answers. The history is write-only
// from the engine's point of view.
package stores
