/*
Package bridge implements the correlated request/response channel between an
external controller and a running target process. It uses WebSockets for bidi
messaging so the target only needs to expose an HTTP server.

There are two frames in this protocol: "request" frames are sent controller to
target as {"id", "method", "params"}, and "response" frames are sent target to
controller as {"id", "result"} or {"id", "error": {"code", "message"}}. The id
echoes the originating request; it is the only ordering guarantee, since a
handler may defer its result and respond after later requests have already
been answered.

The controller side (Client) owns at most one connection, assigns each call a
fresh correlation id, and tracks it in a pending table with a deadline. The
target side (Server) is driven by the host application's frame tick: once per
Tick it admits newly accepted peers, dispatches the frames each peer has
received, runs registered tick hooks, and reaps peers whose transport closed.
Handlers must not block the tick; results that depend on a future tick are
returned as a *Deferred and the response is sent when it resolves.
*/
package bridge
