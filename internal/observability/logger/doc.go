// Package logger holds the process-wide zap logger.
//
// Init is called once from main; every other package reaches the logger
// through L() or Named(). Components receive no logger in their
// constructors on purpose: the singleton is the only sink.
package logger
