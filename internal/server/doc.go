// Package server implements the HTTP surface of the file share: the
// listing, upload, download and delete routes, the Basic auth gate and
// the ops endpoints under /-/. It wires the file registry into the
// routes and provides lifecycle helpers used by tests and the binary.
package server
