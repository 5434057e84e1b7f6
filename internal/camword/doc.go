// Package camword parses and formats the compact camera-set encoding used by
// processing rows.
//
// A camword lists spectrograph numbers after a band prefix: "a" selects every
// band for the listed spectrographs, while "b", "r" and "z" select a single
// band. "a0123b5r7z7" therefore covers all cameras of spectrographs 0-3, b5,
// and every camera of spectrograph 7. Bad amplifier lists ("b7D,z8A") are
// parsed only far enough to find cameras whose four amplifiers are all bad.
//
// The engine treats camwords as opaque row constraints; this package supplies
// the set arithmetic needed to intersect, diff, and forward them.
package camword
