// Package wgpu adapts the gogpu/wgpu hardware abstraction layer to the
// backend.Device interface.
//
// Devices are explicit: resource states are gputypes usage masks, barriers
// become hal usage transitions, and texture copies honor the adapter's
// buffer copy pitch. The package does not import any hal implementation;
// programs register the native backends they want, usually by importing
// github.com/gogpu/wgpu/hal/allbackends.
//
// Fences are tracked against queue submission indices because hal queues
// submit without a fence.
package wgpu
