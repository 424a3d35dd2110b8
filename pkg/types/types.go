package types

import (
	"fmt"
	"strings"
	"time"
)

// MemberId is an opaque string, globally unique across the cluster and
// stable for the lifetime of a supervisor process.
type MemberId string

// ServiceGroup is the named unit of gossip cohesion for one service:
// service.group[@application_environment][@organization]. Equality uses
// all four fields.
type ServiceGroup struct {
	Service     string
	Group       string
	Environment string
	Organization string
}

// NewServiceGroup builds a ServiceGroup, defaulting Group to "default"
// when empty, per the invariant in the data model.
func NewServiceGroup(service, group, environment, organization string) ServiceGroup {
	if group == "" {
		group = "default"
	}
	return ServiceGroup{
		Service:      service,
		Group:        group,
		Environment:  environment,
		Organization: organization,
	}
}

// String renders the canonical service-group string.
func (sg ServiceGroup) String() string {
	var b strings.Builder
	b.WriteString(sg.Service)
	b.WriteByte('.')
	b.WriteString(sg.Group)
	if sg.Environment != "" {
		b.WriteByte('@')
		b.WriteString(sg.Environment)
	}
	if sg.Organization != "" {
		b.WriteByte('@')
		b.WriteString(sg.Organization)
	}
	return b.String()
}

// Valid reports whether the service-group satisfies its invariants:
// service and group are non-empty.
func (sg ServiceGroup) Valid() bool {
	return sg.Service != "" && sg.Group != ""
}

// ParseServiceGroup parses a canonical "service.group[@env][@org]" string.
func ParseServiceGroup(s string) (ServiceGroup, error) {
	rest := s
	var env, org string
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		tail := rest[i+1:]
		rest = rest[:i]
		if j := strings.IndexByte(tail, '@'); j >= 0 {
			env = tail[:j]
			org = tail[j+1:]
		} else {
			env = tail
		}
	}
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 || parts[0] == "" {
		return ServiceGroup{}, fmt.Errorf("invalid service group %q", s)
	}
	return NewServiceGroup(parts[0], parts[1], env, org), nil
}

// PackageIdent identifies a package by origin/name/version/release.
type PackageIdent struct {
	Origin  string
	Name    string
	Version string
	Release string
}

// FullyQualified reports whether all four components are present.
func (p PackageIdent) FullyQualified() bool {
	return p.Origin != "" && p.Name != "" && p.Version != "" && p.Release != ""
}

func (p PackageIdent) String() string {
	parts := []string{p.Origin, p.Name}
	if p.Version != "" {
		parts = append(parts, p.Version)
	}
	if p.Release != "" {
		parts = append(parts, p.Release)
	}
	return strings.Join(parts, "/")
}

// Newer reports whether p is a later release of the same origin/name
// than other: version compares lexicographically, then release
// (a timestamp string) breaks ties within equal version.
func (p PackageIdent) Newer(other PackageIdent) bool {
	if p.Version != other.Version {
		return p.Version > other.Version
	}
	return p.Release > other.Release
}

// RumorKind tags the kind of a gossiped entity.
type RumorKind string

const (
	RumorMember         RumorKind = "member"
	RumorService        RumorKind = "service"
	RumorServiceConfig  RumorKind = "service_config"
	RumorServiceFile    RumorKind = "service_file"
	RumorElection       RumorKind = "election"
	RumorElectionUpdate RumorKind = "election_update"
	RumorDeparture      RumorKind = "departure"
)

// MergeOutcome is the three-way result of merging an incoming rumor
// against an existing one.
type MergeOutcome int

const (
	StopSharing MergeOutcome = iota
	ShareExisting
	ShareNew
)

// MergeResult is the variant returned by a rumor kind's merge function.
// Value is only meaningful when Outcome == ShareNew.
type MergeResult[T any] struct {
	Outcome MergeOutcome
	Value   T
}

func StopSharingResult[T any]() MergeResult[T] {
	return MergeResult[T]{Outcome: StopSharing}
}

func ShareExistingResult[T any]() MergeResult[T] {
	return MergeResult[T]{Outcome: ShareExisting}
}

func ShareNewResult[T any](v T) MergeResult[T] {
	return MergeResult[T]{Outcome: ShareNew, Value: v}
}

// MemberHealth orders SWIM-style health states; higher values win ties
// at equal incarnation during membership merge.
type MemberHealth int

const (
	HealthAlive MemberHealth = iota
	HealthSuspect
	HealthConfirmed
	HealthDeparted
)

func (h MemberHealth) String() string {
	switch h {
	case HealthAlive:
		return "alive"
	case HealthSuspect:
		return "suspect"
	case HealthConfirmed:
		return "confirmed"
	case HealthDeparted:
		return "departed"
	default:
		return "unknown"
	}
}

// Member is the payload of a Membership rumor.
type Member struct {
	Id          MemberId
	Address     string
	SwimPort    int
	GossipPort  int
	Incarnation uint64
	Health      MemberHealth
	Persistent  bool
}

// ServicePresence is the payload of a Service rumor: a member announcing
// that it runs a package in a given service group.
type ServicePresence struct {
	Group       ServiceGroup
	MemberId    MemberId
	Incarnation uint64
	Pkg         PackageIdent
}

// ServiceConfigRumor is the payload of a ServiceConfig rumor: the
// gossip-layer TOML blob for a service group.
type ServiceConfigRumor struct {
	Group       ServiceGroup
	MemberId    MemberId
	Incarnation uint64
	Toml        []byte
	Encrypted   bool
}

// ServiceFileRumor is the payload of a ServiceFile rumor: a single
// gossiped file for a service group.
type ServiceFileRumor struct {
	Group       ServiceGroup
	MemberId    MemberId
	Incarnation uint64
	Filename    string
	Body        []byte
	Encrypted   bool
}

// ElectionStatus is the four-state lifecycle of a leader election.
type ElectionStatus int

const (
	ElectionNone ElectionStatus = iota
	ElectionInProgress
	ElectionNoQuorum
	ElectionFinished
)

func (s ElectionStatus) String() string {
	switch s {
	case ElectionNone:
		return "none"
	case ElectionInProgress:
		return "in_progress"
	case ElectionNoQuorum:
		return "no_quorum"
	case ElectionFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ElectionRumor is the payload shared for Election and ElectionUpdate
// rumors: each member's candidacy for leadership of a service group.
type ElectionRumor struct {
	Group       ServiceGroup
	MemberId    MemberId
	Incarnation uint64
	Term        uint64
	Suitability uint64
	Status      ElectionStatus
	// Winner is populated once Status == ElectionFinished.
	Winner MemberId
}

// DepartureRumor marks a member as having left the cluster voluntarily.
// One-shot: once observed for a MemberId, further merges always stop
// sharing.
type DepartureRumor struct {
	MemberId MemberId
}

// Topology is the intra-group coordination model for a service.
type Topology string

const (
	TopologyStandalone Topology = "standalone"
	TopologyLeader      Topology = "leader"
)

// UpdateStrategy controls how a running service is updated in place.
type UpdateStrategy string

const (
	UpdateStrategyNone    UpdateStrategy = "none"
	UpdateStrategyAtOnce  UpdateStrategy = "at-once"
	UpdateStrategyRolling UpdateStrategy = "rolling"
)

// BindingMode controls how strictly a service's binds gate initialization.
type BindingMode string

const (
	BindingRelaxed BindingMode = "relaxed"
	BindingStrict  BindingMode = "strict"
)

// DesiredState is the operator's intent for a service: running or
// stopped.
type DesiredState string

const (
	DesiredUp   DesiredState = "up"
	DesiredDown DesiredState = "down"
)

// ProcessState is the observed state of a service's process.
type ProcessState string

const (
	ProcessUp   ProcessState = "up"
	ProcessDown ProcessState = "down"
)

// HealthCheckResult is the exit-coded result of a health-check hook.
type HealthCheckResult int

const (
	HealthOk       HealthCheckResult = 0
	HealthWarning  HealthCheckResult = 1
	HealthCritical HealthCheckResult = 2
	HealthUnknown  HealthCheckResult = 3
)

func (h HealthCheckResult) String() string {
	switch h {
	case HealthOk:
		return "ok"
	case HealthWarning:
		return "warning"
	case HealthCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Bind declares a dependency from one service on a named service group
// exported by another.
type Bind struct {
	Name         string
	ServiceGroup ServiceGroup
}

// ServiceSpec is the declarative, operator-authored intent for a
// service.
type ServiceSpec struct {
	Ident                PackageIdent
	Group                string
	BldrURL              string
	Channel              string
	Topology             Topology
	UpdateStrategy       UpdateStrategy
	Binds                []Bind
	BindingMode          BindingMode
	ConfigFrom           *string
	DesiredState         DesiredState
	SvcEncryptedPassword *string
	Composite            *string
}

// ServiceGroupOf renders the ServiceGroup this spec resolves to.
func (s ServiceSpec) ServiceGroupOf(environment, organization string) ServiceGroup {
	return NewServiceGroup(s.Ident.Name, s.Group, environment, organization)
}

// Pkg is the resolved, on-disk view of an installed package.
// Immutable for the lifetime of a Service; replaced atomically on
// package update.
type Pkg struct {
	Ident         PackageIdent
	InstallPath   string
	SvcPath       string
	SvcConfigPath string
	SvcFilesPath  string
	SvcHooksPath  string
	SvcVarPath    string
	SvcDataPath   string
	SvcStaticPath string
	Env           map[string]string
	ExposedPorts  []int
	// Exports maps an externally visible name to a dotted path into cfg,
	// e.g. "port" -> "network.port".
	Exports  map[string]string
	SvcUser  string
	SvcGroup string
	RunCmd   []string
}

// CensusMember is one member's presence within a CensusGroup.
type CensusMember struct {
	Id          MemberId
	Address     string
	Alive       bool
	Leader      bool
	Suitability uint64
	Pkg         PackageIdent
}

// StateTransition records when a process transitioned into a
// ProcessState; pkg/service keeps one per transition in Unit.History.
type StateTransition struct {
	State   ProcessState
	Entered time.Time
}
