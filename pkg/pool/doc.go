// Package pool manages the goroutines that run workers.
//
// A Manager starts one worker slot per unit of concurrency on the primary
// endpoint plus one slot on the secondary endpoint, and waits at a barrier
// until every slot has reported whether its worker initialized. Slots remove
// themselves from the live set when their goroutine unwinds, so the live set
// is always an accurate inventory of running workers.
//
// Termination is cooperative: TerminateAll cancels every slot's context and
// polls until the live set is empty.
package pool
