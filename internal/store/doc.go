// Package store keeps a SQLite catalog of gold results so the API can answer
// limit, alert and capability queries without re-reading lake files.
//
// Every table is keyed by (tier, asof). Replace* methods delete and insert
// inside one transaction, so a recomputed month fully supersedes the old one.
package store
