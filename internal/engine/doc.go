// Package engine runs benchmark groups through the sequencer. It owns the
// main loop on which sequencing happens, resolves launchers for each
// dispatch, records runs, executions and output lines in the store, and fans
// output out to live subscribers.
package engine
