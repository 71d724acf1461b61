/*
Package events provides the in-memory notification broker used to wake
resource.notify subscribers when a vertex's up/down status changes.

A Broker fans a single Notification out to every subscribed channel
without blocking the publisher: a full subscriber buffer simply skips
that notification rather than stalling the caller. This mirrors the
non-blocking, best-effort delivery a streaming notify RPC wants — a
slow or disconnected peer must never hold up the reactor loop that
drives matches.

Publishing happens once per call that changes the UP/DOWN vertex set
(mark, resource-acquire deltas). Each Notification carries the ids that
just went up, the ids that just went down, and an expiration timestamp
for the reservation horizon those ids are now valid over.
*/
package events
