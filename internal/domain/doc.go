// Package domain models the sunset statistics run: input points, the grid
// cells that group them, the sunset lookups made per cell, and the per-point
// results folded into statistics.
//
// # Points and Cells
//
// A Point is a location identifier (a US ZIP code in practice) with a WGS-84
// coordinate and an IANA timezone. Points are grouped into square cells of
// a fixed size in degrees:
//
//	key = (floor(lat / size), floor(lon / size))
//
// Cells are half-open on their upper edges, so a point lying exactly on a
// boundary belongs to the cell whose lower edge it sits on. One sunset lookup
// is made per cell at the cell's representative coordinate (the spherical
// centroid of its members) and shared by every member.
//
// # Time Representation
//
// The remote lookup yields a sunset instant in UTC. Each point's local sunset
// is the cell instant shifted by a longitude correction and viewed in the
// point's own timezone. Statistics operate on minute-of-day:
//
//	minutes elapsed since local midnight, in [0, 1440)
//
// Conversion to and from "HH:MM:SS" happens only at the output boundary. See
// [MinuteOfDay] and [FormatMinuteOfDay].
//
// # Failure Model
//
// Per-point and per-cell failures are recovered locally: unresolvable
// identifiers are dropped before gridding ([ReferenceLookupError]), and cells
// whose lookup fails permanently ([PermanentFetchError]) mark their members as
// failed. Only run-level conditions escalate ([RunAbortedError],
// [ErrEmptyDistribution]).
package domain
