/*
Package census materializes the rumor stores into a read-model the
manager run-loop and configuration layer consult every tick: who is in
my service group, who is the leader, has my gossip config changed, have
any of my bound services' files changed.

A Ring holds one CensusGroup per observed ServiceGroup plus the six
last-seen rumor-store counters it used to decide whether anything
changed since the previous tick. Mirrors the teacher's Reconciler
pattern (pkg/reconciler/reconciler.go): a periodic pass over durable
state that produces an in-memory view consumed by the run-loop, except
here the pass is counter-gated rather than always-rebuild so an idle
cluster costs nothing per tick.
*/
package census
