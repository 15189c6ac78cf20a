// Package ratelimit provides fixed-window admission control for trigger
// requests.
//
// Each caller key owns a counter that expires one window after the first
// admission into it. Requests are admitted while the counter is below the
// ceiling and denied with the window's remaining lifetime as the retry hint
// once it is full. Bursts of up to twice the ceiling are therefore possible
// across a window boundary.
//
// Counters live in a shared WindowStore (Redis or the SQL run store) so
// several API processes enforce one ceiling. When the store cannot be
// reached the Limiter admits the request and reports FailedOpen.
package ratelimit
