/*
Package perfstats tracks match timing with Welford's online algorithm
(spec section 4.8), grounded on the original implementation's
perf_data.hpp: running min, max, mean and M2 for both succeeded and
failed match attempts, plus the per-match avail_time_next probe count
and a graph load-time field. Graph uptime is not tracked here.
*/
package perfstats
