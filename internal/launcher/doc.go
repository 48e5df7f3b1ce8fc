// Package launcher defines the host launcher boundary: the immutable
// descriptor of a runnable benchmark unit, the completion report a launcher
// delivers asynchronously when that unit finishes, and the registry that maps
// descriptor kinds to launcher implementations.
package launcher
