// Package watcher turns file system notifications under a workspace root
// into workspace-relative change events, and coalesces bursts of them.
//
// Watcher is a recursive fsnotify watcher that applies the scanner's exclude
// and .gitignore rules before emitting anything. Debouncer merges events for
// the same path inside a quiet window and hands the batch to a callback:
//
//	d := watcher.NewDebouncer(500*time.Millisecond, func(events []watcher.FileEvent) {
//	    // refresh the affected paths
//	})
//	defer d.Stop()
//
//	w, err := watcher.New(scan, scanner.Options{Root: root, RespectGitignore: true}, logger)
//	if err != nil {
//	    return err
//	}
//	go func() {
//	    for ev := range w.Events() {
//	        d.Add(ev)
//	    }
//	}()
//	return w.Run(ctx)
package watcher
