/*
Package config loads fluxion-resourced's configuration keys (spec
section 6): load-file, load-format, load-allowlist, match-policy,
match-format, subsystems, reserve-vtx-vec, prune-filters,
update-interval, traverser-policy, plus the logging flags the daemon
itself needs.

Three sources are merged, later overriding earlier exactly as spec
section 6 requires: compiled-in defaults, an optional YAML file, then
"k=v" tokens taken from the command line — the same precedence order
and "k=v" token shape the teacher's flux-like config surfaces use,
built here on cobra persistent flags and gopkg.in/yaml.v3.
*/
package config
