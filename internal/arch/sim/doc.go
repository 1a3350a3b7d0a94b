// Package sim is the in-memory architecture implementation backing tests and
// the boot simulator. Address spaces are page maps, frames come from a
// bounded bump-and-freelist source, and cores replay scripted preemption
// events instead of executing instructions.
package sim
