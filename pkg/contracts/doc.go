// Package contracts defines the interfaces between the push bridge and the
// engines that feed it.
//
// Interfaces:
//   - PushEngine: subscribes a client handle and delivers its pushes through
//     a callback.EntryPoint
//   - Publisher: publishes messages into an engine (used by the gateway)
package contracts
