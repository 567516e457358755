/*
Package domain contains the core domain models of the Moments editing session layer.

It defines the entities shared by every component: the editor session lifecycle,
persisted drafts, derived history state and the transient recovery decision.
This package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - SessionState: The lifecycle of one editing session (uninitialized → ready → disposed).
  - DraftRecord: A persisted snapshot of in-progress work, keyed by DraftKey.
  - HistoryState: The undo/redo availability derived from the engine history cursor.
  - RecoveryDecision: The outcome of the pre-interactive draft recovery phase.
*/
package domain
