// Package genfs implements a reactive filesystem access layer for
// build-time code generators: a generator body observes its filesystem
// dependencies through a small synchronous facade (scan, findUp, list,
// read, stat, exists, write, watch), and in watch mode the engine reruns
// the body whenever one of those dependencies changes, cancelling any
// in-flight run and folding every observed event into a single ordered
// change list per rerun.
package genfs
