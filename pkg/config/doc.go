/*
Package config implements the Configuration Layer (§4.C): the four-tier
TOML merge (default -> environment -> user -> gossip), the render
context passed to hook/config templates, and the on-disk ServiceSpec
loader.

# Tiers

Cfg holds four optional TOML tables loaded independently:

	default.toml      package-shipped defaults, loaded from the package's install path
	HAB_<PKG>          the supervisor's own process environment, TOML tried first then JSON
	user.toml          operator override, loaded from the service's on-disk svc path
	gossip             the census group's ServiceConfig rumor, accepted only on incarnation advance

Cfg.Render flattens the four tiers into one Table by merging
default -> environment -> user -> gossip in that priority order
(later tiers win key conflicts), recursing into nested tables up to a
fixed depth, matching the teacher's and original Habitat's TOML merge
precedence and depth guard.

# Ordering

Table is a plain Go map: it keeps no insertion order, and this package
has no serializer that emits scalars first, then arrays, then nested
tables. Template output is still stable for unchanged input, because
text/template visits map keys in sorted order when ranging over a
Table, so template hashes do not change across restarts with no actual
config change.
*/
package config
