// Package tui is a terminal client that runs sessions in process.
package tui
