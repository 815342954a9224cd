// Package scene supplies the reference scan with its view of the world: a
// static manifest of live scenes and a gatherer that walks each scene's root
// assets breadth-first, following asset IDs embedded in textual payloads.
package scene
