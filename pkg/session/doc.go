/*
Package session owns the lifecycle of a Capability Engine instance.

Controller drives the uninitialized → initializing → ready | error → disposed
state machine and the disposal list every subscription registers on. Guard
serializes work on a key across goroutines and, with a distributed locker,
across instances.
*/
package session
