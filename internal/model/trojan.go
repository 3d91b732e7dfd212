package model

// TriggerType selects the activation condition of an inserted Trojan.
type TriggerType string

const (
	TriggerCombinational TriggerType = "combinational"
	TriggerSequential    TriggerType = "sequential"
	TriggerCounter       TriggerType = "counter"
)

// PayloadType selects the malicious effect applied at the payload net.
type PayloadType string

const (
	PayloadLeakage    PayloadType = "leakage"
	PayloadDOS        PayloadType = "dos"
	PayloadCorruption PayloadType = "corruption"
)

// TriggerTypes lists all trigger kinds in cycling order.
var TriggerTypes = []TriggerType{TriggerCombinational, TriggerSequential, TriggerCounter}

// PayloadTypes lists all payload kinds in cycling order.
var PayloadTypes = []PayloadType{PayloadLeakage, PayloadDOS, PayloadCorruption}

// TrojanSpec is one planned insertion. It references nets by name only and
// is immutable once the synthesis engine has generated code from it.
type TrojanSpec struct {
	ID          int         `json:"id"`
	Trigger     TriggerType `json:"trigger_type"`
	Payload     PayloadType `json:"payload_type"`
	TriggerNets []string    `json:"trigger_nets"`
	PayloadNet  string      `json:"payload_net"`
	// LeakSource is the internal net exposed by a leakage payload.
	LeakSource string `json:"leak_source,omitempty"`
	// CounterWidth is the counter trigger width in bits.
	CounterWidth int `json:"counter_width,omitempty"`
}

// InsertionRecord is the persisted outcome of one successful insertion.
type InsertionRecord struct {
	ID             int         `json:"id"`
	Trigger        TriggerType `json:"trigger_type"`
	Payload        PayloadType `json:"payload_type"`
	TriggerNets    []string    `json:"trigger_nets"`
	TriggerScores  []float64   `json:"trigger_scores"`
	PayloadNet     string      `json:"payload_net"`
	PayloadScore   float64     `json:"payload_score"`
	EstimatedGates int         `json:"estimated_gates"`
	OutputFile     string      `json:"output_file"`
	Timestamp      string      `json:"timestamp"`
}

// InsertionMetadata is the run-level metadata artifact: the single source
// of truth for which insertions succeeded.
type InsertionMetadata struct {
	Timestamp        string            `json:"timestamp"`
	OriginalNetlist  string            `json:"original_netlist"`
	NumTrojans       int               `json:"num_trojans"`
	RequestedTrojans int               `json:"requested_trojans"`
	Insertions       []InsertionRecord `json:"insertions"`
}

// RunSummary is the pipeline-level summary artifact.
type RunSummary struct {
	InputNetlist      string `json:"input_netlist"`
	OutputDir         string `json:"output_directory"`
	NumRequested      int    `json:"num_trojans_requested"`
	NumInserted       int    `json:"num_trojans_inserted"`
	FeaturesFile      string `json:"features_file"`
	TargetNetsFile    string `json:"target_nets_file"`
	TrojanedDir       string `json:"trojaned_netlists_dir"`
	MetadataFile      string `json:"metadata_file"`
	Seed              int64  `json:"seed"`
	Timestamp         string `json:"timestamp"`
}
