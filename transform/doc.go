// Package transform maps upstream documents into the flat field model of the
// search backend. A Transformer is a strategy selected by name, so the buffer
// and filter never depend on a particular document shape.
package transform
