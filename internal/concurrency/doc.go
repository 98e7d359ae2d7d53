// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for the network reactor. TaskQueue carries work
// from arbitrary goroutines onto the single reactor thread, in FIFO order;
// PinCurrentThread optionally binds that thread to one CPU.
package concurrency
