/*
Package rset implements the R-set writers and readers the traverser
and Match State use to serialize and rehydrate an allocation (spec
section 6, "R set formats"): rv1_nosched, rv1exec, and jgf. A
Selection is the traverser's in-memory result; Emit renders it to one
of the three wire formats, and Parse inverts a previously emitted
document back into a Selection so it can be replayed onto a graph
(used by traverser.Update and by the round-trip testable property in
spec section 8).
*/
package rset
