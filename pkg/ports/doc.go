/*
Package ports defines the driven ports (interfaces) of the Moments session layer.

These interfaces decouple the session logic from external implementations: the
third-party creative editing engine, the durable client storage, and the UI
surfaces that display notifications and the recovery prompt.

# Key Interfaces

  - EngineFactory / Engine: The Capability Engine black-box contract.
  - SceneSerializer, SceneLoader, ActionAPI: Narrow capability views handed to components
    that must never own or dispose the engine.
  - Storage: Durable key/value storage holding draft records.
  - DistributedLocker: Optional cross-instance guard for draft writes.
  - Notifier / RecoveryPrompter: UI collaborators.
*/
package ports
