/*
Core implements the single-writer dispatch loop of the engine.

# Module
  - router: explicit message type to processor map, one processor per type
  - dispatcher: sole consumer of the inbound bus queue, runs one message to completion before the next
  - query path: read functions executed on the dispatch goroutine for the admin API

# Source
 1. operations from the ingress server
 2. journal replay from the replay tool

# Produce
  - wallet mutations through the ledger processors
  - order payloads to the order forwarders

# Sharded
  - none, every ledger mutation goes through one dispatcher
*/
package core
