// Package gl implements an implicit backend modeled on an OpenGL context.
//
// Every operation runs on a single context goroutine in the order it was
// issued, so the device needs neither barriers nor staging memory: the
// state mapper reports one state for everything, buffers of every heap can
// be mapped, and textures are written directly with the caller's row
// pitch. Command lists are still supported for callers that record
// copies; they execute on the context goroutine at submission.
package gl
