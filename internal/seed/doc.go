// Package seed creates processing rows from a night's exposure table.
//
// Exposures are replayed in EXPID order. Each processed exposure becomes a
// single-exposure row whose dependencies are resolved against the rows
// created before it. When the observing sequence changes exposure type or
// tile, the calibration exposures collected so far are grouped into a joint
// fit: arcs into psfnight, short flat sequences into nightlyflat and the
// sciences of a tile into stdstarfit. Replaying the same exposures again adds
// nothing, so seeding can run repeatedly as the night progresses.
package seed
