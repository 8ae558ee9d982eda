package lifecycle

// Phase is one of the ordered simulation states the lifecycle state
// machine defines.
type Phase int

const (
	Initialization Phase = iota
	Setup
	PostSetup
	PopulationInitialization
	TimeStepPrepare
	TimeStep
	TimeStepCleanup
	CollectMetrics
	SimulationEnd
	Report
)

var phaseNames = [...]string{
	Initialization:           "Initialization",
	Setup:                    "Setup",
	PostSetup:                "PostSetup",
	PopulationInitialization: "PopulationInitialization",
	TimeStepPrepare:          "TimeStepPrepare",
	TimeStep:                 "TimeStep",
	TimeStepCleanup:          "TimeStepCleanup",
	CollectMetrics:           "CollectMetrics",
	SimulationEnd:            "SimulationEnd",
	Report:                   "Report",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}
	return phaseNames[p]
}

// MainLoopPhases is the repeating sub-phase cycle driven once per tick.
var MainLoopPhases = []Phase{TimeStepPrepare, TimeStep, TimeStepCleanup, CollectMetrics}

// OperationKind names a class of framework call whose legality depends on
// the current phase, per the allowedPhases table below.
type OperationKind int

const (
	ReadConfigMutable OperationKind = iota
	ReadConfigReadOnly
	RegisterResource
	CreateSimulants
	PopulationReadWrite
	CallPipeline
	EmitFrameworkEvent
)

var operationNames = map[OperationKind]string{
	ReadConfigMutable:   "ReadConfigMutable",
	ReadConfigReadOnly:  "ReadConfigReadOnly",
	RegisterResource:    "RegisterResource",
	CreateSimulants:     "CreateSimulants",
	PopulationReadWrite: "PopulationReadWrite",
	CallPipeline:        "CallPipeline",
	EmitFrameworkEvent:  "EmitFrameworkEvent",
}

func (o OperationKind) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "Unknown"
}

// postSetupOnward is every phase from PostSetup through Report, used by
// several allowed-sets below.
func postSetupOnward() []Phase {
	return []Phase{PostSetup, PopulationInitialization, TimeStepPrepare, TimeStep,
		TimeStepCleanup, CollectMetrics, SimulationEnd, Report}
}

// allowedPhases is the static policy table mapping each operation kind to
// the phases in which it may legally be invoked.
var allowedPhases = map[OperationKind][]Phase{
	ReadConfigMutable:   {Initialization, Setup},
	ReadConfigReadOnly:  postSetupOnward(),
	RegisterResource:    {Setup},
	CreateSimulants:     {PopulationInitialization, TimeStepPrepare},
	PopulationReadWrite: append([]Phase{PopulationInitialization}, []Phase{TimeStepPrepare, TimeStep, TimeStepCleanup, CollectMetrics, SimulationEnd, Report}...),
	CallPipeline:        postSetupOnward(),
	EmitFrameworkEvent:  nil, // internal only; never granted to components
}

// AllowedIn returns the phases in which op may be invoked.
func AllowedIn(op OperationKind) []Phase {
	return allowedPhases[op]
}

func phaseAllowed(op OperationKind, phase Phase) bool {
	for _, p := range allowedPhases[op] {
		if p == phase {
			return true
		}
	}
	return false
}

func phaseNamesOf(phases []Phase) []string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.String()
	}
	return names
}
