/*
Package hooks implements the Hook Table (§4.D): the eight named scripts
a package may ship, their execution contract, and the ordering
guarantee that within one service init precedes run precedes post-run
precedes health-check precedes the {reload, reconfigure, file-updated}
group.

Hook is deliberately similar in shape to the teacher's health.Checker
(pkg/health/health.go): a small interface around "run something and
get a typed result back", generalized here from a health-only check
into every lifecycle hook a service can define, with health-check and
suitability exposing exit-coded and stdout-integer results
respectively rather than the boolean health.Result the teacher uses.
*/
package hooks
