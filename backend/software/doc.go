// Package software implements an explicit in-memory backend.
//
// The device behaves like a D3D12-class GPU: every subresource carries a
// hardware state, barriers must name the state a resource is actually in,
// copies require copy states, and device-local memory is unreachable from
// the CPU. Work is validated at submission and executed asynchronously on
// a queue goroutine; fences are signaled from that goroutine.
//
// Besides serving as a headless fallback the device is a test harness: it
// records every submission, enforces a memory budget, and can be told to
// fail the next submission.
package software
