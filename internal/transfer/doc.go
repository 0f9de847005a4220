// Package transfer moves bytes between host memory and device resources on
// explicit backends.
//
// A Coordinator owns three Lists, one per Role. Each List owns a command
// list, a private fence and, for Upload and Readback, a StagingPool of
// persistently mapped host memory. Callers borrow a List through the
// Coordinator's WithXListDo methods, which hold the role lock for the
// duration of the closure:
//
//	err := c.WithUploadListDo(size, align, func(l *transfer.List) error {
//		copy(l.Staging().Bytes(), data)
//		if err := l.Begin(); err != nil {
//			return err
//		}
//		...
//		return l.SubmitAndWait()
//	})
//
// Roles do not exclude each other. Work within a role is totally ordered.
package transfer
