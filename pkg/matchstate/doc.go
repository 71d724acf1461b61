/*
Package matchstate holds the job table the traverser's match/update/
cancel operations act on: one entry per live job, indices over which
jobs are allocated vs. reserved, and cached R-set renderings of the
graph's current all/down/allocated views.

The table is deliberately dumb: it does not run matches itself (that
is the traverser's job) and does not own the graph (that is the
engine's job). It is the bookkeeping the engine consults before and
after every traverser call — next_jobid, is_existent, and the record
of what each live jobid currently holds.
*/
package matchstate
