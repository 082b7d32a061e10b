// Package ledger stores per-holder amortization state: how many scheduled
// payments were made for each (investor, bond) pair, when the schedule was
// last settled, the payout balance credited to every investor, and a journal
// of payout receipts.
//
// All mutations go through Store.Update, which stages writes and commits them
// atomically; a failing callback leaves no observable change.
//
// Three implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and single-node development.
//   - PostgresStore: durable, for production use.
//   - SQLiteStore: durable and embedded, for single-node deployments.
package ledger
